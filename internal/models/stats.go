package models

// DashboardStats summarises an account's recent tests.
type DashboardStats struct {
	TotalTests       int            `json:"totalTests"`
	SuccessTests     int            `json:"successTests"`
	FailedTests      int            `json:"failedTests"`
	InFlightTests    int            `json:"inFlightTests"`
	NetworkBreakdown map[string]int `json:"networkBreakdown"`
	RecentTests      []*Test        `json:"recentTests"`
	CreditsThisMonth int            `json:"creditsUsedThisMonth"`
}
