package e2e_test

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/bombadil/exerciser/internal/runner"
	"github.com/bombadil/exerciser/internal/verifier"
	"github.com/bombadil/exerciser/pkg/types"
)

// fakeCDPSession stands in for a real chromedp/cdproto browser
// connection: a scripted sequence of BrowserState snapshots, and a
// record of every action the runner dispatched against it.
type fakeCDPSession struct {
	states  []*types.BrowserState
	idx     int
	applied []types.BrowserAction
}

func (f *fakeCDPSession) RequestState(ctx context.Context) (*types.BrowserState, error) {
	s := f.states[f.idx]
	if f.idx < len(f.states)-1 {
		f.idx++
	}
	return s, nil
}

func (f *fakeCDPSession) Apply(ctx context.Context, action types.BrowserAction, timeout time.Duration) error {
	f.applied = append(f.applied, action)
	return nil
}

func (f *fakeCDPSession) EvaluateExtractor(ctx context.Context, expr string) (json.RawMessage, error) {
	return json.RawMessage("null"), nil
}

func (f *fakeCDPSession) Terminate() error { return nil }

var _ = Describe("Exerciser loop against a fake CDP session", func() {
	var session *fakeCDPSession

	BeforeEach(func() {
		session = &fakeCDPSession{}
		for i := 0; i < 10; i++ {
			session.states = append(session.states, &types.BrowserState{
				Timestamp: time.UnixMilli(int64(i)),
				URL:       "https://example.com/app",
				Coverage:  types.CoverageDelta{{Index: uint32(i), Bucket: 1}},
			})
		}
	})

	It("steps a loaded specification's property to a definite outcome while dispatching actions", func() {
		v := verifier.New(zap.NewNop(), &verifier.ReplayByteSource{Bytes: []byte{1, 2, 3, 4}})
		Expect(v.LoadSpecification("spec.js", []byte(strippedCounterSpec))).To(Succeed())

		rng := rand.New(rand.NewSource(1))
		var events []runner.RunEvent

		r := runner.New(zap.NewNop(), session, v, "example.com", false, rng, func(ev runner.RunEvent) {
			events = append(events, ev)
		})

		summary, err := r.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Steps).To(BeNumerically(">", 0))
		Expect(summary.Violated).To(BeFalse())
		Expect(session.applied).NotTo(BeEmpty())
		Expect(events).NotTo(BeEmpty())
	})

	It("collapses every dispatched action to Back once the page leaves the configured origin", func() {
		v := verifier.New(zap.NewNop(), &verifier.ReplayByteSource{Bytes: []byte{1, 2, 3, 4}})
		Expect(v.LoadSpecification("spec.js", []byte(strippedCounterSpec))).To(Succeed())

		for _, s := range session.states {
			s.URL = "https://attacker.example/"
		}

		rng := rand.New(rand.NewSource(1))
		r := runner.New(zap.NewNop(), session, v, "example.com", false, rng, nil)

		_, err := r.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		for _, a := range session.applied {
			Expect(a.Kind).To(Equal(types.ActionBack))
		}
	})
})

// strippedCounterSpec avoids relying on any global outside the module
// closure: the counter lives in the specification's own module scope,
// incremented each time the eventually property's thunk is evaluated, matching how a real
// specification file closes over mutable state across steps.
const strippedCounterSpec = `
const bombadil = require("@bombadil");

let counter = 0;

exports.eventuallyStops = bombadil.eventually(function () {
  counter++;
  return bombadil.pure(counter >= 3, "counter reached 3");
}).within(50, "milliseconds");

exports.clicksAround = bombadil.actionGenerator(function () {
  return bombadil.uniform([bombadil.click("submit-button"), bombadil.back()]);
});
`
