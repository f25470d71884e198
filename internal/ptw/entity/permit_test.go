package entity

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{PermitStatusDraft, PermitStatusPendingApproval},
		{PermitStatusPendingApproval, PermitStatusApproved},
		{PermitStatusPendingApproval, PermitStatusActive},
		{PermitStatusPendingApproval, PermitStatusRejected},
		{PermitStatusApproved, PermitStatusActive},
		{PermitStatusActive, PermitStatusExtensionRequested},
		{PermitStatusActive, PermitStatusClosed},
		{PermitStatusExtensionRequested, PermitStatusActive},
		{PermitStatusExtensionRequested, PermitStatusClosed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s → %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to string }{
		{PermitStatusDraft, PermitStatusActive},
		{PermitStatusActive, PermitStatusPendingApproval},
		{PermitStatusActive, PermitStatusRejected},
		{PermitStatusClosed, PermitStatusActive},
		{PermitStatusRejected, PermitStatusPendingApproval},
		{PermitStatusRejected, PermitStatusActive},
		{PermitStatusClosed, PermitStatusClosed},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s → %s should be denied", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []string{PermitStatusRejected, PermitStatusClosed} {
		if !IsTerminalStatus(s) {
			t.Errorf("%s should be terminal", s)
		}
		// 终态没有任何出边
		for _, to := range []string{
			PermitStatusDraft, PermitStatusPendingApproval, PermitStatusApproved,
			PermitStatusActive, PermitStatusExtensionRequested, PermitStatusRejected, PermitStatusClosed,
		} {
			if CanTransition(s, to) {
				t.Errorf("terminal %s should have no transition to %s", s, to)
			}
		}
	}

	for _, s := range []string{PermitStatusDraft, PermitStatusPendingApproval, PermitStatusActive} {
		if IsTerminalStatus(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestPermitRoleAccessors(t *testing.T) {
	officerID := "user-so"
	p := &Permit{
		SafetyOfficerID:     &officerID,
		AreaManagerStatus:   ApprovalStatusPending,
		SafetyOfficerStatus: ApprovalStatusPending,
		SiteLeaderStatus:    ApprovalStatusPending,
	}

	if got := p.AssignedApprover(RoleSafetyOfficer); got == nil || *got != officerID {
		t.Errorf("AssignedApprover(safety_officer) = %v, want %s", got, officerID)
	}
	if got := p.AssignedApprover(RoleAreaManager); got != nil {
		t.Errorf("AssignedApprover(area_manager) = %v, want nil", got)
	}

	p.SetRoleStatus(RoleSafetyOfficer, ApprovalStatusApproved)
	if p.SafetyOfficerStatus != ApprovalStatusApproved {
		t.Errorf("SetRoleStatus did not update safety_officer_status")
	}

	votes := p.ApprovalVotes()
	if len(votes) != 3 {
		t.Fatalf("ApprovalVotes returned %d votes, want 3", len(votes))
	}
	// 仅安全员被指派且已通过 → 聚合通过
	if got := EvaluateConsensus(votes); got != ApprovalStatusApproved {
		t.Errorf("consensus = %s, want approved", got)
	}
}
