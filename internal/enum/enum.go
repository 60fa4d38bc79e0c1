package enum

// ── Group A: State machines ──

const (
	OrderStateInProgress      = "in_progress"
	OrderStateReadyForPayment = "ready_for_payment"
)

const (
	TableStateFree     = "free"
	TableStateOccupied = "occupied"
)

// ── Group B: Roles ──

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
	RoleWaiter = "waiter"
)

// ── Group C: Payment methods ──

const (
	PaymentMethodCash      = "cash"
	PaymentMethodCard      = "card"
	PaymentMethodTransfer  = "transfer"
	PaymentMethodNequi     = "nequi"
	PaymentMethodDaviplata = "daviplata"
	PaymentMethodOther     = "other"
)

// PaymentMethods lists every accepted method in reporting order.
var PaymentMethods = []string{
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodTransfer,
	PaymentMethodNequi,
	PaymentMethodDaviplata,
	PaymentMethodOther,
}

// ── Group D: Document collections ──

const (
	CollectionStaff            = "staff"
	CollectionProducts         = "products"
	CollectionTables           = "tables"
	CollectionOrders           = "orders"
	CollectionPendingCheckouts = "pending_checkouts"
	CollectionSales            = "sales"
)

// ── Group E: Live feed event types ──

const (
	EventOrderCreated        = "order.created"
	EventOrderUpdated        = "order.updated"
	EventOrderReady          = "order.ready"
	EventOrderSentToCheckout = "order.sent_to_checkout"
	EventCheckoutClaimed     = "checkout.claimed"
	EventSaleCompleted       = "sale.completed"
	EventTableUpdated        = "table.updated"
)

// TableCount is the fixed number of tables on the floor.
const TableCount = 10

// DefaultCategory labels products saved without a category.
const DefaultCategory = "Sin categoría"
