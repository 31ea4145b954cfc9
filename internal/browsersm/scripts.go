package browsersm

import "github.com/bombadil/exerciser/internal/instrument"

// coverageReadScript buckets current[] in place (AFL-style log-spaced
// buckets), diffs against previous[], returns the JSON-encoded delta
// as [[index,bucket], ...], then rotates previous<-current and
// replaces current with a fresh zeroed array. Evaluated against the
// current debugger-paused call frame so the read is atomic with
// respect to page script execution.
var coverageReadScript = `(function(){
  var cov = window.` + covNamespace + `;
  if (!cov) return "[]";
  var cur = cov.current, prev = cov.previous;
  var n = cur.length;
  function bucket(v){
    if (v===0) return 0;
    if (v===1) return 1;
    if (v===2) return 2;
    if (v===3) return 3;
    if (v<8) return 4;
    if (v<16) return 8;
    if (v<32) return 16;
    if (v<128) return 32;
    return 128;
  }
  var delta = [];
  for (var i=0;i<n;i++){
    var b = bucket(cur[i]);
    cur[i] = b;
    if (b !== prev[i]) delta.push([i,b]);
  }
  cov.previous = cur;
  cov.current = new Uint8Array(n);
  return JSON.stringify(delta);
})()`

// simHashScript folds the bucketed previous[] map into a 64-bit
// SimHash via splitmix64-mixed edge indices, weighted by
// log2(bucket) clamped to [1,3]. Returns the decimal string of the
// resulting uint64, or "null" when every edge is zero.
var simHashScript = `(function(){
  var cov = window.` + covNamespace + `;
  if (!cov) return "null";
  var prev = cov.previous;
  var n = prev.length;
  var acc = new Array(64).fill(0);
  var any = false;
  var MASK = 0xFFFFFFFFFFFFFFFFn;
  function splitmix64(x){
    x = (x + 0x9E3779B97F4A7C15n) & MASK;
    x = x ^ (x >> 30n); x = (x * 0xBF58476D1CE4E5B9n) & MASK;
    x = x ^ (x >> 27n); x = (x * 0x94D049BB133111EBn) & MASK;
    x = x ^ (x >> 31n);
    return x;
  }
  for (var i=0;i<n;i++){
    var b = prev[i];
    if (b===0) continue;
    any = true;
    var w = Math.min(3, Math.max(1, Math.log2(b)));
    var h = splitmix64(BigInt(i));
    for (var bit=0; bit<64; bit++){
      var bitval = (h >> BigInt(bit)) & 1n;
      acc[bit] += (bitval === 1n) ? w : -w;
    }
  }
  if (!any) return "null";
  var result = 0n;
  for (var bit=0; bit<64; bit++){
    if (acc[bit] > 0) result |= (1n << BigInt(bit));
  }
  return result.toString();
})()`

const pageStateScript = `(function(){
  return JSON.stringify({
    url: window.location.href,
    title: document.title,
    contentType: document.contentType
  });
})()`

var covNamespace = instrument.Namespace
