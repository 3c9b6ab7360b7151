package engine

import "fmt"

// Action names the write operation a queued entry replays. The set is
// closed: dispatch switches over it exhaustively, and unknown tags read
// back from the durable queue are rejected instead of guessed at.
type Action string

const (
	ActionSaveSale            Action = "saveSale"
	ActionSavePurchase        Action = "savePurchase"
	ActionSaveCustomer        Action = "saveCustomer"
	ActionSaveSupplier        Action = "saveSupplier"
	ActionSaveVoucher         Action = "saveVoucher"
	ActionSaveExpense         Action = "saveExpense"
	ActionSaveExpenseTemplate Action = "saveExpenseTemplate"
	ActionSaveCategory        Action = "saveCategory"
	ActionSaveWaste           Action = "saveWaste"
	ActionSaveOpeningBalance  Action = "saveOpeningBalance"
	ActionSaveNotification    Action = "saveNotification"
	ActionMarkAllRead         Action = "markAllNotificationsRead"
	ActionUpdateSettings      Action = "updateSettings"
	ActionDeleteRecord        Action = "deleteRecord"
	ActionReturnSale          Action = "returnSale"
	ActionReturnPurchase      Action = "returnPurchase"
)

// upsertTables maps each upsert-family action to its remote table.
var upsertTables = map[Action]string{
	ActionSaveSale:            "sales",
	ActionSavePurchase:        "purchases",
	ActionSaveCustomer:        "customers",
	ActionSaveSupplier:        "suppliers",
	ActionSaveVoucher:         "vouchers",
	ActionSaveExpense:         "expenses",
	ActionSaveExpenseTemplate: "expense_templates",
	ActionSaveCategory:        "categories",
	ActionSaveWaste:           "waste",
	ActionSaveOpeningBalance:  "opening_balances",
	ActionSaveNotification:    "notifications",
}

// cacheKeys maps a remote table to the read-path cache key it feeds, so
// a successful write can invalidate the collection it changed.
var cacheKeys = map[string]string{
	"sales":             "sales",
	"purchases":         "purchs",
	"customers":         "custs",
	"suppliers":         "supps",
	"vouchers":          "vchs",
	"expenses":          "exps",
	"expense_templates": "exp_templates",
	"categories":        "cats",
	"waste":             "waste",
	"notifications":     "notifs",
	"activity_log":      "logs",
}

// ActionForTable resolves the upsert action that writes to a table.
func ActionForTable(table string) (Action, bool) {
	for a, t := range upsertTables {
		if t == table {
			return a, true
		}
	}
	return "", false
}

// ParseAction validates an action tag read back from the durable queue.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	switch a {
	case ActionSaveSale, ActionSavePurchase, ActionSaveCustomer, ActionSaveSupplier,
		ActionSaveVoucher, ActionSaveExpense, ActionSaveExpenseTemplate,
		ActionSaveCategory, ActionSaveWaste, ActionSaveOpeningBalance,
		ActionSaveNotification, ActionMarkAllRead, ActionUpdateSettings,
		ActionDeleteRecord, ActionReturnSale, ActionReturnPurchase:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}
