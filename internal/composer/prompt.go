package composer

import (
	"fmt"
	"strings"

	"crypto-summary-bot/internal/domain"
)

// numeric precision levels used when a prompt must shrink.
const (
	precisionFull   = 8
	precisionCoarse = 2
)

// promptInput carries everything one composition needs. Templates and
// memory are never truncated; social mentions and numeric precision
// absorb all size pressure.
type promptInput struct {
	systemText string
	formatText string
	memory     []domain.MemoryEntry
	coin       domain.Coin
	result     *domain.AggregateResult
	trigger    string
}

// renderUserPrompt serializes the data payload. mentions is the
// (possibly already truncated) slice to include; precision is the
// number of decimals for prices.
func renderUserPrompt(in promptInput, mentions []domain.SocialMention, precision int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Generate a %s crypto market summary for %s (%s).\n",
		in.trigger, in.coin.Name, in.coin.Symbol)

	sb.WriteString("\n=== LEARNED CONTEXT ===\n")
	if len(in.memory) == 0 {
		sb.WriteString("No learned context yet\n")
	}
	for _, entry := range in.memory {
		fmt.Fprintf(&sb, "- %s: %s\n", entry.Key, entry.Value)
	}

	sb.WriteString("\n=== MARKET DATA ===\n")
	writeMarketSection(&sb, in.result.Market, failureFor(in.result, domain.SourceCoinMarketCap), precision)

	sb.WriteString("\n=== DEX DATA ===\n")
	writeDexSection(&sb, in.result.Dex, failureFor(in.result, domain.SourceDexScreener), precision)

	sb.WriteString("\n=== SOCIAL MENTIONS ===\n")
	writeSocialSection(&sb, in.result.Social, mentions, failureFor(in.result, domain.SourceSocial))

	sb.WriteString("\n")
	sb.WriteString(in.formatText)
	return sb.String()
}

// failureFor finds the recorded failure for a source, if any.
func failureFor(result *domain.AggregateResult, source string) *domain.SourceFailure {
	for i := range result.Failed {
		if result.Failed[i].Source == source {
			return &result.Failed[i]
		}
	}
	return nil
}

func writeMarketSection(sb *strings.Builder, snap *domain.MarketSnapshot, failure *domain.SourceFailure, precision int) {
	if snap == nil {
		writeUnavailable(sb, domain.SourceCoinMarketCap, failure)
		return
	}
	fmt.Fprintf(sb, "Source: CoinMarketCap\n")
	fmt.Fprintf(sb, "Price: $%.*f\n", precision, snap.PriceUSD)
	fmt.Fprintf(sb, "Change 1h: %+.2f%%\n", snap.Change1hPct)
	fmt.Fprintf(sb, "Change 24h: %+.2f%%\n", snap.Change24hPct)
	fmt.Fprintf(sb, "Change 7d: %+.2f%%\n", snap.Change7dPct)
	fmt.Fprintf(sb, "Volume 24h: $%.*f\n", pri(precision), snap.Volume24hUSD)
	fmt.Fprintf(sb, "Market Cap: $%.*f\n", pri(precision), snap.MarketCapUSD)
}

func writeDexSection(sb *strings.Builder, snap *domain.MarketSnapshot, failure *domain.SourceFailure, precision int) {
	if snap == nil {
		writeUnavailable(sb, domain.SourceDexScreener, failure)
		return
	}
	fmt.Fprintf(sb, "Source: DexScreener\n")
	fmt.Fprintf(sb, "Pair: %s on %s\n", snap.PairName, snap.DexID)
	fmt.Fprintf(sb, "Price USD: $%.*f\n", precision, snap.PriceUSD)
	fmt.Fprintf(sb, "Change 1h: %+.2f%%\n", snap.Change1hPct)
	fmt.Fprintf(sb, "Change 24h: %+.2f%%\n", snap.Change24hPct)
	fmt.Fprintf(sb, "Volume 24h: $%.*f\n", pri(precision), snap.Volume24hUSD)
	fmt.Fprintf(sb, "Liquidity USD: $%.*f\n", pri(precision), snap.LiquidityUSD)
	fmt.Fprintf(sb, "Txns 24h: %d buys / %d sells\n", snap.Buys24h, snap.Sells24h)
	fmt.Fprintf(sb, "Txns 1h: %d buys / %d sells\n", snap.Buys1h, snap.Sells1h)
}

func writeSocialSection(sb *strings.Builder, snap *domain.SocialSnapshot, mentions []domain.SocialMention, failure *domain.SourceFailure) {
	if snap == nil {
		writeUnavailable(sb, domain.SourceSocial, failure)
		return
	}
	if len(mentions) == 0 {
		sb.WriteString("No recent mentions found\n")
		return
	}
	if dropped := len(snap.Mentions) - len(mentions); dropped > 0 {
		fmt.Fprintf(sb, "(oldest %d mentions omitted for size)\n", dropped)
	}
	for i, m := range mentions {
		author := m.Author
		if author == "" {
			author = "unknown"
		}
		fmt.Fprintf(sb, "Mention #%d by %s (%s, via %s):\n  %s\n",
			i+1, author, m.PublishedAt.Format("2006-01-02 15:04"), m.FeedID, m.Text)
	}
}

// writeUnavailable tells the model explicitly what is unknown so it
// reports a gap instead of fabricating numbers.
func writeUnavailable(sb *strings.Builder, source string, failure *domain.SourceFailure) {
	if failure != nil {
		fmt.Fprintf(sb, "Data unavailable (%s: %s). Do not invent values for this section.\n",
			source, failure.Kind)
		return
	}
	fmt.Fprintf(sb, "Data unavailable (%s not configured). Do not invent values for this section.\n", source)
}

// pri keeps dollar aggregates at two decimals even at full precision;
// only unit prices need the extra digits.
func pri(precision int) int {
	if precision > 2 {
		return 2
	}
	return precision
}

// fitPrompt shrinks the user prompt to the byte budget. Order of
// sacrifice: oldest social mentions first, then numeric precision.
// Templates and memory are never cut.
func fitPrompt(in promptInput, maxBytes int) string {
	mentions := []domain.SocialMention(nil)
	if in.result.Social != nil {
		mentions = in.result.Social.Mentions
	}

	user := renderUserPrompt(in, mentions, precisionFull)
	if promptSize(in.systemText, user) <= maxBytes {
		return user
	}

	for len(mentions) > 0 {
		mentions = mentions[1:] // drop the oldest
		user = renderUserPrompt(in, mentions, precisionFull)
		if promptSize(in.systemText, user) <= maxBytes {
			return user
		}
	}

	return renderUserPrompt(in, mentions, precisionCoarse)
}

func promptSize(systemText, userText string) int {
	return len(systemText) + len(userText)
}
