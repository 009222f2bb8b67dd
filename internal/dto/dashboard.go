package dto

// DashboardQuery bounds finance dashboard aggregation. Dates use YYYY-MM-DD; To is inclusive.
type DashboardQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}
