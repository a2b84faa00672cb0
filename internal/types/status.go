package types

// Status is the workflow state of a tracking entry.
type Status string

// Status values understood by the remote service.
const (
	StatusNew          Status = "New"
	StatusIncomplete   Status = "Incomplete"
	StatusOpinion      Status = "Opinion"
	StatusInvalid      Status = "Invalid"
	StatusWontFix      Status = "Won't Fix"
	StatusExpired      Status = "Expired"
	StatusConfirmed    Status = "Confirmed"
	StatusTriaged      Status = "Triaged"
	StatusInProgress   Status = "In Progress"
	StatusFixCommitted Status = "Fix Committed"
	StatusFixReleased  Status = "Fix Released"
	StatusDeferred     Status = "Deferred"
	StatusUnknown      Status = "Unknown"
)

// AllStatuses lists every status, in the order the remote presents them.
var AllStatuses = []Status{
	StatusNew,
	StatusIncomplete,
	StatusOpinion,
	StatusInvalid,
	StatusWontFix,
	StatusExpired,
	StatusConfirmed,
	StatusTriaged,
	StatusInProgress,
	StatusFixCommitted,
	StatusFixReleased,
	StatusDeferred,
}

// OpenStatuses are the statuses of bugs that still need work. These are the
// defaults for a release migration.
var OpenStatuses = []Status{
	StatusNew,
	StatusConfirmed,
	StatusTriaged,
	StatusInProgress,
	StatusIncomplete,
}

// IsValid checks if the status value is known.
func (s Status) IsValid() bool {
	if s == StatusUnknown {
		return true
	}
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Importance is the priority of a tracking entry.
type Importance string

// Importance values understood by the remote service.
const (
	ImportanceUndecided Importance = "Undecided"
	ImportanceCritical  Importance = "Critical"
	ImportanceHigh      Importance = "High"
	ImportanceMedium    Importance = "Medium"
	ImportanceLow       Importance = "Low"
	ImportanceWishlist  Importance = "Wishlist"
	ImportanceUnknown   Importance = "Unknown"
)

// IsValid checks if the importance value is known.
func (i Importance) IsValid() bool {
	switch i {
	case ImportanceUndecided, ImportanceCritical, ImportanceHigh, ImportanceMedium,
		ImportanceLow, ImportanceWishlist, ImportanceUnknown:
		return true
	}
	return false
}
