package ethwatch

import (
	"fmt"
	"math/big"

	"github.com/pvzzle/buywatch/internal/chain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const nativeDecimals = 18

// Branding holds the project-specific words and links of every post.
type Branding struct {
	ProjectName   string
	CommunityName string
	TokenSymbol   string
	NativeSymbol  string
	LogoURL       string
	BuyURL        string
	ExplorerName  string
	ExplorerTxURL string
}

func DefaultBranding() Branding {
	return Branding{
		ProjectName:   "Agama Coin",
		CommunityName: "Agama Army",
		TokenSymbol:   "$AGAMA",
		NativeSymbol:  "BNB",
		LogoURL:       "https://www.agamacoin.com/agama-logo-new.png",
		BuyURL:        "https://bscscan.com/token/0x2119de8f257d27662991198389E15Bf8d1F4aB24",
		ExplorerName:  "BscScan",
		ExplorerTxURL: "https://bscscan.com/tx/",
	}
}

// Alert is a ready-to-post purchase notification.
type Alert struct {
	Caption  string
	ImageURL string
	LinkURL  string
}

// WeiToNative renders wei in native units with a fixed number of places.
func WeiToNative(wei *big.Int, places int32) string {
	if wei == nil {
		wei = new(big.Int)
	}
	return decimal.NewFromBigInt(wei, -nativeDecimals).StringFixed(places)
}

// ShortAddress renders an address as first6...last4.
func ShortAddress(a common.Address) string {
	h := a.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}

func FormatAlert(c chain.Candidate, b Branding) Alert {
	link := b.ExplorerTxURL + c.Hash.Hex()
	caption := fmt.Sprintf(
		"🚀 *New Buy Alert!* 🚀\n\n"+
			"A true believer just joined the %s! A savvy investor just acquired some %s!\n\n"+
			"💰 *Amount*: %s %s\n"+
			"👤 *Buyer*: `%s`\n"+
			"🔗 *Transaction*: [View on %s](%s)\n"+
			"📈 *Become an early holder*: [Buy %s now!](%s)",
		b.CommunityName, b.TokenSymbol,
		WeiToNative(c.Value, 3), b.NativeSymbol,
		ShortAddress(c.From),
		b.ExplorerName, link,
		b.TokenSymbol, b.BuyURL,
	)
	return Alert{Caption: caption, ImageURL: b.LogoURL, LinkURL: link}
}

func FormatReminder(b Branding) string {
	return fmt.Sprintf(
		"⏰ *Reminder*: The Presale is Live! ⏰\n\n"+
			"Don't miss your chance to be an early holder of %s! "+
			"The future of decentralized finance starts here.\n\n"+
			"➡️ [Buy Now and Join the Journey!](%s)",
		b.ProjectName, b.BuyURL,
	)
}

func FormatWelcome(b Branding) string {
	return fmt.Sprintf(
		"👋 Welcome to the %s Bot!\n\n"+
			"I'm here to provide real-time presale buy alerts and periodic reminders.\n"+
			"Use /buynow to get the presale link.",
		b.ProjectName,
	)
}

func FormatBuyNow(b Branding) string {
	return fmt.Sprintf(
		"🚀 *%s Presale is Live!* 🚀\n\n"+
			"Secure your position and become an early holder.\n\n"+
			"➡️ [Buy Now!](%s)",
		b.ProjectName, b.BuyURL,
	)
}
