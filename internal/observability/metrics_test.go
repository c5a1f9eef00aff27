package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSeedRegistration(t *testing.T) {
	before := testutil.ToFloat64(seedRegistrations.WithLabelValues("otp_mismatch"))

	RecordSeedRegistration("otp_mismatch")
	RecordSeedRegistration("otp_mismatch")

	after := testutil.ToFloat64(seedRegistrations.WithLabelValues("otp_mismatch"))
	assert.Equal(t, before+2, after)
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/seed.ipxe", "200"))

	RecordHTTPRequest("GET", "/seed.ipxe", 200, 5*time.Millisecond)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/seed.ipxe", "200"))
	assert.Equal(t, before+1, after)
}

func TestRecordSeedOffer(t *testing.T) {
	before := testutil.ToFloat64(seedOffers)
	RecordSeedOffer()
	assert.Equal(t, before+1, testutil.ToFloat64(seedOffers))
}

func TestRecordSeedInit(t *testing.T) {
	before := testutil.ToFloat64(seedInits)
	RecordSeedInit()
	assert.Equal(t, before+1, testutil.ToFloat64(seedInits))
}
