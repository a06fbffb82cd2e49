package syncer

// Failure is the structured error half of an Outcome. Code is either a
// fetch error code, "sync_in_progress", or "sync_error"; Detail carries
// the diagnostic and remediation hint for an administrator.
type Failure struct {
	Code   string
	Detail string
}

const (
	FailureInProgress = "sync_in_progress"
	FailureSyncError  = "sync_error"
)

// Outcome is the sole return value of a sync run: aggregated counts on
// success, a Failure otherwise. Never both half-filled.
type Outcome struct {
	Created          int
	Reactivated      int
	Deactivated      int
	Onboarded        int
	OnboardingErrors int
	Failure          *Failure
}

func (o Outcome) OK() bool {
	return o.Failure == nil
}

// PendingOnboarding queues the setup message for one newly created
// record. The raw token appears here once and nowhere else.
type PendingOnboarding struct {
	ExternalID string
	Email      string
	Name       string
	SetupToken string
}
