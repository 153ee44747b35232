package metrics

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

var st statsd.ClientInterface
var prefix string

func init() {
	var opts []statsd.Option
	if tagsStr, ok := os.LookupEnv("STATSD_TAGS"); ok && len(tagsStr) > 0 {
		tags := strings.Split(tagsStr, ",")
		opts = append(opts, statsd.WithTags(tags))
	}

	client, err := statsd.New("", opts...)
	if err != nil {
		st = &statsd.NoOpClient{}
	} else {
		st = client
	}

	p, ok := os.LookupEnv("STATSD_PREFIX")
	if !ok {
		prefix = "poicheck."
	} else {
		prefix = p
	}
}

// FetchAttempt records a single digest request against a node.
func FetchAttempt(node string, ok bool, d time.Duration) {
	tags := []string{"node:" + node, fmt.Sprintf("ok:%v", ok)}
	_ = st.Distribution(prefix+"fetch_latency", float64(d.Milliseconds()), tags, 1)
	_ = st.Incr(prefix+"fetch_attempts", tags, 1)
}

// Probe records the outcome of one consensus check.
func Probe(diverged bool, unreachable int, d time.Duration) {
	tags := []string{fmt.Sprintf("diverged:%v", diverged)}
	_ = st.Distribution(prefix+"probe_latency", float64(d.Milliseconds()), tags, 1)
	_ = st.Distribution(prefix+"probe_unreachable", float64(unreachable), tags, 1)
}

func Done() {
	_ = st.Close()
}
