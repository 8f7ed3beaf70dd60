package models

import (
	"strings"
	"time"
)

// PlanStatus is the acceptance workflow state of a payment plan.
type PlanStatus string

const (
	StatusOpen            PlanStatus = "OPEN"
	StatusLocked          PlanStatus = "LOCKED"
	StatusLockedFSP       PlanStatus = "LOCKED_FSP"
	StatusPreparing       PlanStatus = "PREPARING"
	StatusInApproval      PlanStatus = "IN_APPROVAL"
	StatusInAuthorization PlanStatus = "IN_AUTHORIZATION"
	StatusInReview        PlanStatus = "IN_REVIEW"
	StatusAccepted        PlanStatus = "ACCEPTED"
	StatusFinished        PlanStatus = "FINISHED"
)

var validStatuses = map[PlanStatus]bool{
	StatusOpen:            true,
	StatusLocked:          true,
	StatusLockedFSP:       true,
	StatusPreparing:       true,
	StatusInApproval:      true,
	StatusInAuthorization: true,
	StatusInReview:        true,
	StatusAccepted:        true,
	StatusFinished:        true,
}

func (s PlanStatus) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether no further transition can leave s.
func (s PlanStatus) IsTerminal() bool {
	return s == StatusFinished
}

// IsSignOffStage reports whether s collects quorum sign-offs.
func (s PlanStatus) IsSignOffStage() bool {
	return s == StatusInApproval || s == StatusInAuthorization || s == StatusInReview
}

func (s PlanStatus) String() string {
	return string(s)
}

// BackgroundActionStatus marks long-running work owned by another service.
type BackgroundActionStatus string

const (
	BackgroundNone                 BackgroundActionStatus = ""
	BackgroundRuleEngineRunning    BackgroundActionStatus = "RULE_ENGINE_RUNNING"
	BackgroundRuleEngineError      BackgroundActionStatus = "RULE_ENGINE_ERROR"
	BackgroundXlsxExporting        BackgroundActionStatus = "XLSX_EXPORTING"
	BackgroundXlsxExportError      BackgroundActionStatus = "XLSX_EXPORT_ERROR"
	BackgroundXlsxImporting        BackgroundActionStatus = "XLSX_IMPORTING_ENTITLEMENTS"
	BackgroundXlsxImportError      BackgroundActionStatus = "XLSX_IMPORT_ERROR"
	BackgroundExcludeBeneficiaries BackgroundActionStatus = "EXCLUDE_BENEFICIARIES"
	BackgroundExcludeError         BackgroundActionStatus = "EXCLUDE_BENEFICIARIES_ERROR"
	BackgroundSendingToGateway     BackgroundActionStatus = "SEND_TO_PAYMENT_GATEWAY"
	BackgroundSendToGatewayError   BackgroundActionStatus = "SEND_TO_PAYMENT_GATEWAY_ERROR"
)

// InProgress reports whether the background action still owns the plan.
// Failed background actions leave an *_ERROR marker that does not block users.
func (b BackgroundActionStatus) InProgress() bool {
	return b != BackgroundNone && !strings.HasSuffix(string(b), "_ERROR")
}

// PaymentPlan is a disbursement plan moving through acceptance.
type PaymentPlan struct {
	ID      string     `json:"id"`
	Status  PlanStatus `json:"status"`
	Version int64      `json:"version"`

	ProgramID       string `json:"programId"`
	IsActiveProgram bool   `json:"isActiveProgram"`
	BusinessArea    string `json:"businessArea"`

	IsFollowUp   bool   `json:"isFollowUp"`
	SourcePlanID string `json:"sourcePlanId,omitempty"`
	SplitFromID  string `json:"splitFromId,omitempty"`

	ApprovalNumberRequired       int `json:"approvalNumberRequired"`
	AuthorizationNumberRequired  int `json:"authorizationNumberRequired"`
	FinanceReleaseNumberRequired int `json:"financeReleaseNumberRequired"`

	BackgroundActionStatus BackgroundActionStatus `json:"backgroundActionStatus,omitempty"`
	RejectedOn             PlanStatus             `json:"rejectedOn,omitempty"`
	PreparingFrom          PlanStatus             `json:"preparingFrom,omitempty"`

	TargetListFinalized        bool `json:"targetListFinalized"`
	DeliveryMechanismsAssigned bool `json:"deliveryMechanismsAssigned"`
	CanSplit                   bool `json:"canSplit"`
	CanSendToPaymentGateway    bool `json:"canSendToPaymentGateway"`
	SentToPaymentGateway       bool `json:"sentToPaymentGateway"`

	// ApprovalProcesses is ordered oldest first; the last one is active.
	ApprovalProcesses []*ApprovalProcess `json:"approvalProcesses,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActiveApprovalProcess returns the current approval process or nil.
func (p *PaymentPlan) ActiveApprovalProcess() *ApprovalProcess {
	if len(p.ApprovalProcesses) == 0 {
		return nil
	}
	return p.ApprovalProcesses[len(p.ApprovalProcesses)-1]
}

// RequiredFor returns the quorum size for a sign-off kind.
func (p *PaymentPlan) RequiredFor(kind ActionKind) int {
	switch kind {
	case KindApproval:
		return p.ApprovalNumberRequired
	case KindAuthorization:
		return p.AuthorizationNumberRequired
	case KindFinanceRelease:
		return p.FinanceReleaseNumberRequired
	}
	return 0
}

// Clone returns a deep copy.
func (p *PaymentPlan) Clone() *PaymentPlan {
	if p == nil {
		return nil
	}
	cp := *p
	if p.ApprovalProcesses != nil {
		cp.ApprovalProcesses = make([]*ApprovalProcess, len(p.ApprovalProcesses))
		for i, proc := range p.ApprovalProcesses {
			cp.ApprovalProcesses[i] = proc.Clone()
		}
	}
	return &cp
}
