// Package api defines the settleup RPC surface: message types, service
// descriptors, handler and client constructors for the Connect protocol.
//
// Money travels as amount_minor (integer minor units) with an informational
// decimal string next to it. Inputs may set either; amount_minor wins when
// both are set.
package api

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
	CreatedAt   int64    `json:"created_at"`
}

// Share is one user's part of an expense, paid or consumed.
type Share struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name,omitempty"`
	AmountMinor int64  `json:"amount_minor"`
	Amount      string `json:"amount,omitempty"`
}

type Expense struct {
	ID           string  `json:"id"`
	GroupID      string  `json:"group_id"`
	Description  string  `json:"description"`
	Category     string  `json:"category,omitempty"`
	AmountMinor  int64   `json:"amount_minor"`
	Amount       string  `json:"amount"`
	Payers       []Share `json:"payers"`
	Participants []Share `json:"participants"`
	CreatedAt    int64   `json:"created_at"`
	UpdatedAt    int64   `json:"updated_at"`
}

type MemberBalance struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	NetMinor       int64  `json:"net_minor"`
	Net            string `json:"net"`
	TotalPaidMinor int64  `json:"total_paid_minor"`
	TotalOwedMinor int64  `json:"total_owed_minor"`
}

// Transfer is one planned payment: From pays To.
type Transfer struct {
	FromUserID  string `json:"from_user_id"`
	FromName    string `json:"from_name"`
	ToUserID    string `json:"to_user_id"`
	ToName      string `json:"to_name"`
	AmountMinor int64  `json:"amount_minor"`
	Amount      string `json:"amount"`
}

type Settlement struct {
	ID          string `json:"id"`
	BatchID     string `json:"batch_id"`
	GroupID     string `json:"group_id"`
	FromUserID  string `json:"from_user_id"`
	ToUserID    string `json:"to_user_id"`
	AmountMinor int64  `json:"amount_minor"`
	Amount      string `json:"amount"`
	Position    int    `json:"position"`
	CreatedAt   int64  `json:"created_at"`
	CreatedBy   string `json:"created_by"`
	Note        string `json:"note,omitempty"`
}

// LedgerService

type GetBalancesRequest struct {
	GroupID string `json:"group_id"`
}

type GetBalancesResponse struct {
	GroupID  string          `json:"group_id"`
	Balances []MemberBalance `json:"balances"`
}

type GetSettlementPlanRequest struct {
	GroupID string `json:"group_id"`
}

type GetSettlementPlanResponse struct {
	GroupID   string     `json:"group_id"`
	Transfers []Transfer `json:"transfers"`
}

type SettleUpRequest struct {
	GroupID string `json:"group_id"`
	Note    string `json:"note,omitempty"`
}

type SettleUpResponse struct {
	// BatchID is empty when the group was already settled.
	BatchID     string       `json:"batch_id,omitempty"`
	Settlements []Settlement `json:"settlements"`
}

type ListSettlementsRequest struct {
	GroupID string `json:"group_id"`
}

type ListSettlementsResponse struct {
	Settlements []Settlement `json:"settlements"`
}

// GroupService

type CreateUserRequest struct {
	// ID is optional; one is generated when empty.
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type CreateUserResponse struct {
	User User `json:"user"`
}

// UpdateUserRequest edits the caller's own profile.
type UpdateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type UpdateUserResponse struct {
	User User `json:"user"`
}

type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
}

type CreateGroupResponse struct {
	Group Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type GetGroupResponse struct {
	Group Group  `json:"group"`
	Users []User `json:"users"`
}

type UpdateGroupRequest struct {
	GroupID     string `json:"group_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateGroupResponse struct {
	Group Group `json:"group"`
}

type ListGroupsRequest struct{}

// GroupSummary is one of the caller's groups with the caller's net balance in it.
type GroupSummary struct {
	Group    Group  `json:"group"`
	NetMinor int64  `json:"net_minor"`
	Net      string `json:"net"`
}

type ListGroupsResponse struct {
	Groups []GroupSummary `json:"groups"`
}

type AddMembersRequest struct {
	GroupID string   `json:"group_id"`
	UserIDs []string `json:"user_ids"`
}

type AddMembersResponse struct {
	Group Group `json:"group"`
}

type RemoveMemberRequest struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

type RemoveMemberResponse struct {
	Group Group `json:"group"`
}

// ExpenseService

// ExpenseInput describes an expense either with explicit shares or with
// PaidBy/PaidFor, which split the amount equally in ascending user id order.
type ExpenseInput struct {
	Description  string   `json:"description,omitempty"`
	Category     string   `json:"category,omitempty"`
	AmountMinor  int64    `json:"amount_minor,omitempty"`
	Amount       string   `json:"amount,omitempty"`
	Payers       []Share  `json:"payers,omitempty"`
	Participants []Share  `json:"participants,omitempty"`
	PaidBy       []string `json:"paid_by,omitempty"`
	PaidFor      []string `json:"paid_for,omitempty"`
}

type CreateExpenseRequest struct {
	GroupID string       `json:"group_id"`
	Expense ExpenseInput `json:"expense"`
}

type CreateExpenseResponse struct {
	Expense Expense `json:"expense"`
}

type UpdateExpenseRequest struct {
	ExpenseID string       `json:"expense_id"`
	Expense   ExpenseInput `json:"expense"`
}

type UpdateExpenseResponse struct {
	Expense Expense `json:"expense"`
}

type DeleteExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type DeleteExpenseResponse struct{}

type ListExpensesRequest struct {
	GroupID string `json:"group_id"`
}

type ListExpensesResponse struct {
	Expenses []Expense `json:"expenses"`
}
