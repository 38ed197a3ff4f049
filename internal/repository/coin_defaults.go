package repository

import "crypto-summary-bot/internal/domain"

// defaultCoins is the initial watchlist seeded on first boot.
var defaultCoins = []domain.Coin{
	{
		Symbol:         "OWB",
		Name:           "OpenWorld",
		DexSearchQuery: "OWB",
		FeedQueries:    []string{"owb", "#owb", "#OWB", "$OWB"},
	},
	{
		Symbol:         "RNBW",
		Name:           "Rainbow",
		DexSearchQuery: "rainbow token",
		FeedQueries:    []string{"rnbw", "rainbow", "#rnbw", "#rainbow", "#RNBW", "$RNBW"},
	},
}
