package entity

// RecordStatus 车辆接待单状态
type RecordStatus string

const (
	RecordStatusCheckedIn               RecordStatus = "CHECKED_IN"
	RecordStatusInDiagnosis             RecordStatus = "IN_DIAGNOSIS"
	RecordStatusWaitingCustomerApproval RecordStatus = "WAITING_CUSTOMER_APPROVAL"
	RecordStatusProcessing              RecordStatus = "PROCESSING"
	RecordStatusReadyForPickup          RecordStatus = "READY_FOR_PICKUP"
	RecordStatusCompleted               RecordStatus = "COMPLETED"
	RecordStatusCancelled               RecordStatus = "CANCELLED"
)

var recordTransitions = map[RecordStatus][]RecordStatus{
	RecordStatusCheckedIn:   {RecordStatusInDiagnosis, RecordStatusCancelled},
	RecordStatusInDiagnosis: {RecordStatusWaitingCustomerApproval, RecordStatusCancelled},
	// 全部工单行已终结且无一获批时可直接待取车
	RecordStatusWaitingCustomerApproval: {RecordStatusProcessing, RecordStatusReadyForPickup, RecordStatusCancelled},
	RecordStatusProcessing:              {RecordStatusReadyForPickup, RecordStatusCancelled},
	RecordStatusReadyForPickup:          {RecordStatusCompleted, RecordStatusCancelled},
}

func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	return contains(recordTransitions[s], next)
}

func (s RecordStatus) IsTerminal() bool {
	return s == RecordStatusCompleted || s == RecordStatusCancelled
}

// CaseStatus 保修案例状态
type CaseStatus string

const (
	CaseStatusPendingAssignment CaseStatus = "PENDING_ASSIGNMENT"
	CaseStatusInDiagnosis       CaseStatus = "IN_DIAGNOSIS"
	CaseStatusDiagnosed         CaseStatus = "DIAGNOSED"
	CaseStatusCancelled         CaseStatus = "CANCELLED"
)

var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseStatusPendingAssignment: {CaseStatusInDiagnosis, CaseStatusCancelled},
	CaseStatusInDiagnosis:       {CaseStatusDiagnosed, CaseStatusCancelled},
	CaseStatusDiagnosed:         {CaseStatusCancelled},
}

func (s CaseStatus) CanTransitionTo(next CaseStatus) bool {
	return contains(caseTransitions[s], next)
}

// LineStatus 工单行状态
type LineStatus string

const (
	LineStatusPendingApproval         LineStatus = "PENDING_APPROVAL"
	LineStatusCustomerApproved        LineStatus = "CUSTOMER_APPROVED"
	LineStatusWaitingForParts         LineStatus = "WAITING_FOR_PARTS"
	LineStatusReadyForRepair          LineStatus = "READY_FOR_REPAIR"
	LineStatusInRepair                LineStatus = "IN_REPAIR"
	LineStatusCompleted               LineStatus = "COMPLETED"
	LineStatusRejectedByOutOfWarranty LineStatus = "REJECTED_BY_OUT_OF_WARRANTY"
	LineStatusRejectedByTech          LineStatus = "REJECTED_BY_TECH"
	LineStatusRejectedByCustomer      LineStatus = "REJECTED_BY_CUSTOMER"
	LineStatusCancelled               LineStatus = "CANCELLED"
)

var lineTransitions = map[LineStatus][]LineStatus{
	LineStatusPendingApproval: {
		LineStatusCustomerApproved, LineStatusRejectedByOutOfWarranty,
		LineStatusRejectedByTech, LineStatusRejectedByCustomer, LineStatusCancelled,
	},
	LineStatusCustomerApproved: {
		LineStatusWaitingForParts, LineStatusReadyForRepair,
		LineStatusRejectedByTech, LineStatusRejectedByCustomer, LineStatusCancelled,
	},
	LineStatusWaitingForParts: {
		LineStatusReadyForRepair,
		LineStatusRejectedByTech, LineStatusRejectedByCustomer, LineStatusCancelled,
	},
	// 预留被取消或超时释放后退回待料
	LineStatusReadyForRepair: {
		LineStatusInRepair, LineStatusWaitingForParts,
		LineStatusRejectedByTech, LineStatusRejectedByCustomer, LineStatusCancelled,
	},
	// 领出的配件损坏或装车件退回
	LineStatusInRepair: {LineStatusCompleted, LineStatusWaitingForParts, LineStatusCancelled},
}

func (s LineStatus) CanTransitionTo(next LineStatus) bool {
	return contains(lineTransitions[s], next)
}

func (s LineStatus) IsTerminal() bool {
	switch s {
	case LineStatusCompleted, LineStatusRejectedByOutOfWarranty, LineStatusRejectedByTech,
		LineStatusRejectedByCustomer, LineStatusCancelled:
		return true
	}
	return false
}

// ReservationStatus 配件预留状态
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusPickedUp  ReservationStatus = "PICKED_UP"
	ReservationStatusInstalled ReservationStatus = "INSTALLED"
	ReservationStatusReturned  ReservationStatus = "RETURNED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusReserved:  {ReservationStatusPickedUp, ReservationStatusCancelled},
	ReservationStatusPickedUp:  {ReservationStatusInstalled, ReservationStatusCancelled},
	ReservationStatusInstalled: {ReservationStatusReturned},
}

func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	return contains(reservationTransitions[s], next)
}

// IsActive 仍占用库存或已装车
func (s ReservationStatus) IsActive() bool {
	return s == ReservationStatusReserved || s == ReservationStatusPickedUp || s == ReservationStatusInstalled
}

// TransferStatus 调拨单状态
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "PENDING"
	TransferStatusApproved  TransferStatus = "APPROVED"
	TransferStatusRejected  TransferStatus = "REJECTED"
	TransferStatusInTransit TransferStatus = "IN_TRANSIT"
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusCancelled TransferStatus = "CANCELLED"
)

var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferStatusPending:   {TransferStatusApproved, TransferStatusRejected, TransferStatusCancelled},
	TransferStatusApproved:  {TransferStatusInTransit, TransferStatusCancelled},
	TransferStatusInTransit: {TransferStatusCompleted},
}

func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	return contains(transferTransitions[s], next)
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
