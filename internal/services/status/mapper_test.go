package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/fibreflow/internal/models"
	"github.com/ternarybob/fibreflow/internal/services/standardize"
)

func TestMap_OrderedRules(t *testing.T) {
	tests := []struct {
		name      string
		canonical *standardize.Canonical
		want      string
	}{
		{
			name:      "service not found",
			canonical: &standardize.Canonical{ServiceFound: false},
			want:      NotFound,
		},
		{
			name: "not found wins over every other flag",
			canonical: &standardize.Canonical{
				ServiceFound:           false,
				IsActive:               true,
				CancellationCapturedID: "CXL-1",
			},
			want: NotFound,
		},
		{
			name: "pending cease order",
			canonical: &standardize.Canonical{
				ServiceFound:      true,
				IsActive:          true,
				PendingCeaseOrder: true,
			},
			want: CancellationPending,
		},
		{
			name: "pending requests flag alone",
			canonical: &standardize.Canonical{
				ServiceFound:    true,
				IsActive:        true,
				PendingRequests: true,
			},
			want: CancellationPending,
		},
		{
			name: "implementation date set",
			canonical: &standardize.Canonical{
				ServiceFound:                   true,
				CancellationImplementationDate: "2026-01-15",
			},
			want: AlreadyCancelled,
		},
		{
			name: "implementation date beats active flag",
			canonical: &standardize.Canonical{
				ServiceFound:                   true,
				IsActive:                       true,
				CancellationImplementationDate: "2026-01-15",
			},
			want: AlreadyCancelled,
		},
		{
			name: "captured id on inactive service",
			canonical: &standardize.Canonical{
				ServiceFound:           true,
				IsActive:               false,
				CancellationCapturedID: "CXL-2",
			},
			want: AlreadyCancelled,
		},
		{
			name: "submitted cancellation on active service",
			canonical: &standardize.Canonical{
				ServiceFound:           true,
				IsActive:               true,
				CancellationSubmitted:  true,
				CancellationCapturedID: "REL-9",
			},
			want: CancellationPending,
		},
		{
			name: "plain active service",
			canonical: &standardize.Canonical{
				ServiceFound: true,
				IsActive:     true,
			},
			want: Validated,
		},
		{
			name: "unverified service",
			canonical: &standardize.Canonical{
				ServiceFound:       true,
				VerificationStatus: "Unverified",
			},
			want: VerificationPending,
		},
		{
			name: "isp provisioning outstanding",
			canonical: &standardize.Canonical{
				ServiceFound:   true,
				ISPProvisioned: "no",
			},
			want: ISPProvisioningPending,
		},
		{
			name: "found but no other signal",
			canonical: &standardize.Canonical{
				ServiceFound: true,
			},
			want: Validated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Map(true, models.ActionValidation, tt.canonical)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMap_IncompleteJob(t *testing.T) {
	c := &standardize.Canonical{ServiceFound: true, IsActive: true}

	// The portal findings are irrelevant once the job itself failed
	assert.Equal(t, ValidationError, Map(false, models.ActionValidation, c))
	assert.Equal(t, DeleteError, Map(false, models.ActionCancellation, c))
	assert.Equal(t, ProcessingError, Map(false, models.Action("reconcile"), c))
}

func TestMap_NilCanonical(t *testing.T) {
	assert.Equal(t, NotFound, Map(true, models.ActionValidation, nil))
}

func TestFailureStatus_KeywordClasses(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"timeout", "context deadline exceeded while loading portal", "Bitstream Validation Timeout"},
		{"timed out wording", "operation timed out after 90s", "Bitstream Validation Timeout"},
		{"auth failure", "login failed: invalid credentials", "Bitstream Validation Auth Error"},
		{"unauthorized", "received 401 unauthorized from portal API", "Bitstream Validation Auth Error"},
		{"network refusal", "dial tcp: connection refused", "Bitstream Validation Network Error"},
		{"dns failure", "lookup portal.example: no such host", "Bitstream Validation Network Error"},
		{"portal wording", "element not found: #search-button", "Bitstream Validation Portal Error"},
		{"browser crash", "browser session terminated unexpectedly", "Bitstream Validation System Error"},
		{"unclassified", "something odd happened", "Bitstream Validation Error"},
		{"empty message", "", "Bitstream Validation Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FailureStatus(models.ActionValidation, tt.message)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFailureStatus_ClassOrdering(t *testing.T) {
	// A message matching several classes takes the first: timeout wins
	// over auth, auth over network
	got := FailureStatus(models.ActionValidation, "login timed out over the network")
	assert.Equal(t, "Bitstream Validation Timeout", got)

	got = FailureStatus(models.ActionValidation, "auth server connection refused")
	assert.Equal(t, "Bitstream Validation Auth Error", got)
}

func TestFailureStatus_CancellationPrefix(t *testing.T) {
	assert.Equal(t, "Bitstream Delete Timeout", FailureStatus(models.ActionCancellation, "portal timeout"))
	assert.Equal(t, "Bitstream Delete Error", FailureStatus(models.ActionCancellation, "unclassified"))
}
