package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type symbolEntry struct {
	Symbol  string
	Name    string
	Aliases []string
}

var symbolTable = []symbolEntry{
	{Symbol: "BTC", Name: "Bitcoin", Aliases: []string{"xbt", "bitcoin"}},
	{Symbol: "ETH", Name: "Ethereum", Aliases: []string{"ether", "ethereum"}},
	{Symbol: "SOL", Name: "Solana", Aliases: []string{"solana"}},
	{Symbol: "BNB", Name: "BNB", Aliases: []string{"binance coin"}},
	{Symbol: "XRP", Name: "XRP", Aliases: []string{"ripple"}},
	{Symbol: "ADA", Name: "Cardano", Aliases: []string{"cardano"}},
	{Symbol: "DOGE", Name: "Dogecoin", Aliases: []string{"dogecoin"}},
	{Symbol: "DOT", Name: "Polkadot", Aliases: []string{"polkadot"}},
	{Symbol: "AVAX", Name: "Avalanche", Aliases: []string{"avalanche"}},
	{Symbol: "POL", Name: "Polygon", Aliases: []string{"matic", "polygon"}},
	{Symbol: "LINK", Name: "Chainlink", Aliases: []string{"chainlink"}},
	{Symbol: "TON", Name: "Toncoin", Aliases: []string{"toncoin"}},
	{Symbol: "TRX", Name: "TRON", Aliases: []string{"tron"}},
	{Symbol: "LTC", Name: "Litecoin", Aliases: []string{"litecoin"}},
	{Symbol: "SHIB", Name: "Shiba Inu", Aliases: []string{"shiba", "shiba inu"}},
	{Symbol: "PEPE", Name: "Pepe", Aliases: []string{"pepe"}},
	{Symbol: "ARB", Name: "Arbitrum", Aliases: []string{"arbitrum"}},
	{Symbol: "OP", Name: "Optimism", Aliases: []string{"optimism"}},
	{Symbol: "SUI", Name: "Sui", Aliases: []string{"sui"}},
	{Symbol: "APT", Name: "Aptos", Aliases: []string{"aptos"}},
	{Symbol: "USDT", Name: "Tether", Aliases: []string{"tether"}},
	{Symbol: "USDC", Name: "USD Coin", Aliases: []string{"usd coin"}},
	{Symbol: "UNI", Name: "Uniswap", Aliases: []string{"uniswap"}},
	{Symbol: "AAVE", Name: "Aave", Aliases: []string{"aave"}},
	{Symbol: "NEAR", Name: "NEAR Protocol", Aliases: []string{"near", "near protocol"}},
	{Symbol: "ATOM", Name: "Cosmos", Aliases: []string{"cosmos"}},
}

var topicAliases = map[string]string{
	"l1":          "Layer 1",
	"layer1":      "Layer 1",
	"layer 1":     "Layer 1",
	"l2":          "Layer 2",
	"layer2":      "Layer 2",
	"layer 2":     "Layer 2",
	"defi":        "DeFi",
	"cefi":        "CeFi",
	"gamefi":      "GameFi",
	"socialfi":    "SocialFi",
	"depin":       "DePIN",
	"nft":         "NFT",
	"nfts":        "NFT",
	"rwa":         "Real World Assets",
	"rwas":        "Real World Assets",
	"etf":         "ETF",
	"etfs":        "ETF",
	"memecoin":    "Memecoins",
	"memecoins":   "Memecoins",
	"meme coins":  "Memecoins",
	"airdrop":     "Airdrops",
	"airdrops":    "Airdrops",
	"ai":          "AI",
	"ai agents":   "AI Agents",
	"dao":         "DAO",
	"daos":        "DAO",
	"stablecoin":  "Stablecoins",
	"stablecoins": "Stablecoins",
	"lst":         "Liquid Staking",
	"lsd":         "Liquid Staking",
	"restaking":   "Restaking",
	"regulation":  "Regulation",
	"sec":         "SEC",
}

var (
	nameBySymbol = make(map[string]string)
	symbolByName = make(map[string]string)
)

func init() {
	for _, e := range symbolTable {
		nameBySymbol[strings.ToLower(e.Symbol)] = e.Name
		for _, alias := range e.Aliases {
			nameBySymbol[alias] = e.Name
		}
		symbolByName[strings.ToLower(e.Name)] = e.Symbol
	}
}

func lookupKey(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "$#")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// NormalizeProjectName maps tickers and aliases to the canonical name and
// title-cases anything the table does not know.
func NormalizeProjectName(raw string) string {
	key := lookupKey(raw)
	if key == "" {
		return ""
	}
	if name, ok := nameBySymbol[key]; ok {
		return name
	}
	return cases.Title(language.English).String(key)
}

// InferSymbol inverts the symbol table, falling back to the first four
// letters of the name upper-cased.
func InferSymbol(name string) string {
	if sym, ok := symbolByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return sym
	}

	var sb strings.Builder
	for _, r := range name {
		if sb.Len() == 4 {
			break
		}
		if unicode.IsLetter(r) {
			sb.WriteRune(unicode.ToUpper(r))
		}
	}
	return sb.String()
}

func NormalizeTopicName(raw string) string {
	key := lookupKey(raw)
	if key == "" {
		return ""
	}
	if name, ok := topicAliases[key]; ok {
		return name
	}
	return strings.Join(strings.Fields(strings.TrimLeft(strings.TrimSpace(raw), "#")), " ")
}
