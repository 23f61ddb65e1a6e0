package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCreated(t *testing.T) {
	before := testutil.ToFloat64(elicitationsCreatedTotal.WithLabelValues("otp"))
	RecordCreated("otp")
	assert.Equal(t, before+1, testutil.ToFloat64(elicitationsCreatedTotal.WithLabelValues("otp")))
}

func TestRecordResume_LabelsByOutcome(t *testing.T) {
	ok := testutil.ToFloat64(resumeCallsTotal.WithLabelValues("confirm_payment", "success"))
	bad := testutil.ToFloat64(resumeCallsTotal.WithLabelValues("confirm_payment", "failure"))

	RecordResume("confirm_payment", true, 10*time.Millisecond)
	RecordResume("confirm_payment", false, 20*time.Millisecond)
	RecordResume("confirm_payment", false, 30*time.Millisecond)

	assert.Equal(t, ok+1, testutil.ToFloat64(resumeCallsTotal.WithLabelValues("confirm_payment", "success")))
	assert.Equal(t, bad+2, testutil.ToFloat64(resumeCallsTotal.WithLabelValues("confirm_payment", "failure")))
}

func TestRecordSweep(t *testing.T) {
	cycles := testutil.ToFloat64(sweeperCyclesTotal)
	expired := testutil.ToFloat64(sweeperExpiredTotal)
	errs := testutil.ToFloat64(sweeperErrorsTotal)

	RecordSweep(2, 1)

	assert.Equal(t, cycles+1, testutil.ToFloat64(sweeperCyclesTotal))
	assert.Equal(t, expired+2, testutil.ToFloat64(sweeperExpiredTotal))
	assert.Equal(t, errs+1, testutil.ToFloat64(sweeperErrorsTotal))
}
