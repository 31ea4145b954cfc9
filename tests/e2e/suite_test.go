package e2e_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestExerciser(t *testing.T) {
	RegisterFailHandler(Fail)

	suiteConfig, reporterConfig := GinkgoConfiguration()
	suiteConfig.ParallelTotal = 1
	suiteConfig.Timeout = 2 * time.Minute
	reporterConfig.Succinct = true

	RunSpecs(t, "Exerciser Loop Acceptance Suite", suiteConfig, reporterConfig)
}
