package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// The giveaway record lives in a JavaScript config file maintained by the
// site, so the parser extracts values with regex patterns instead of
// evaluating the script. Property order inside objects is not assumed.
var (
	reTitle      = regexp.MustCompile(`title:\s*["']([^"']+)["']`)
	reTotalValue = regexp.MustCompile(`totalValue:\s*["']([^"']+)["']`)

	rePrizesSection = regexp.MustCompile(`prizes:\s*\[([\s\S]*?)\]`)
	rePrizeObject   = regexp.MustCompile(`\{[^}]+\}`)
	rePrizeName     = regexp.MustCompile(`name:\s*["']([^"']+)["']`)
	rePrizeImage    = regexp.MustCompile(`image:\s*["']([^"']+)["']`)
	rePrizeAlt      = regexp.MustCompile(`alt:\s*["']([^"']+)["']`)

	reMinimumDeposit = regexp.MustCompile(`minimumDeposit:\s*["']([^"']+)["']`)
	reRulesBonusCode = regexp.MustCompile(`rules:\s*\{[^}]*bonusCode:\s*["']([^"']+)["']`)
	reAdditionalInfo = regexp.MustCompile(`additionalInfo:\s*["']([^"']+)["']`)
	reValidPeriod    = regexp.MustCompile(`validPeriod:\s*["']([^"']+)["']`)

	rePartnerName     = regexp.MustCompile(`partnerName:\s*["']([^"']+)["']`)
	rePartnerLogo     = regexp.MustCompile(`partnerLogo:\s*["']([^"']+)["']`)
	rePartnerURL      = regexp.MustCompile(`partnerUrl:\s*["']([^"']+)["']`)
	rePartnerBonus    = regexp.MustCompile(`bonusCode:\s*["']([^"']+)["']`)
	rePartnerBonusPct = regexp.MustCompile(`bonusPercentage:\s*["']([^"']+)["']`)
)

// Giveaway is the parsed giveaway half of the payload.
type Giveaway struct {
	Title      string  `json:"title"`
	TotalValue string  `json:"total_value"`
	Prizes     []Prize `json:"prizes"`
	Rules      Rules   `json:"rules"`
}

// Prize is one prize entry with its image resolved to a full URL.
type Prize struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	Alt   string `json:"alt"`
}

// Rules are the participation rules of the giveaway.
type Rules struct {
	MinimumDeposit string `json:"minimum_deposit"`
	BonusCode      string `json:"bonus_code"`
	AdditionalInfo string `json:"additional_info"`
	ValidPeriod    string `json:"valid_period"`
}

// Partnership is the partner block of the payload.
type Partnership struct {
	Name            string `json:"name"`
	Logo            string `json:"logo"`
	URL             string `json:"url"`
	BonusCode       string `json:"bonus_code"`
	BonusPercentage string `json:"bonus_percentage"`
}

// Payload is the complete giveaway record served to clients.
type Payload struct {
	Giveaway    Giveaway    `json:"giveaway"`
	Partnership Partnership `json:"partnership"`
}

// FileFetcher reads and parses the giveaway JavaScript config file.
// It implements Fetcher.
type FileFetcher struct {
	path    string
	baseURL string
}

// NewFileFetcher creates a FileFetcher for the config file at path.
// Relative image and logo paths are prefixed with baseURL.
func NewFileFetcher(path, baseURL string) *FileFetcher {
	return &FileFetcher{path: path, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Fetch reads the config file and returns the giveaway record as JSON.
func (f *FileFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &UpstreamError{Op: "read config", Err: err}
	}

	content, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &UpstreamError{Op: "read config", Err: fmt.Errorf("giveaway configuration not found: %w", err)}
		}
		return nil, &UpstreamError{Op: "read config", Err: err}
	}

	payload := f.parse(string(content))
	if payload.Giveaway.Title == "" && len(payload.Giveaway.Prizes) == 0 {
		return nil, &UpstreamError{Op: "parse config", Err: errors.New("no giveaway data found")}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &UpstreamError{Op: "encode payload", Err: err}
	}
	return data, nil
}

func (f *FileFetcher) parse(content string) Payload {
	var p Payload

	p.Giveaway.Title = firstMatch(reTitle, content)
	p.Giveaway.TotalValue = firstMatch(reTotalValue, content)
	p.Giveaway.Prizes = f.parsePrizes(content)
	p.Giveaway.Rules = Rules{
		MinimumDeposit: firstMatch(reMinimumDeposit, content),
		BonusCode:      firstMatch(reRulesBonusCode, content),
		AdditionalInfo: firstMatch(reAdditionalInfo, content),
		ValidPeriod:    firstMatch(reValidPeriod, content),
	}
	p.Partnership = Partnership{
		Name:            firstMatch(rePartnerName, content),
		Logo:            f.absoluteURL(firstMatch(rePartnerLogo, content)),
		URL:             firstMatch(rePartnerURL, content),
		BonusCode:       firstMatch(rePartnerBonus, content),
		BonusPercentage: firstMatch(rePartnerBonusPct, content),
	}
	return p
}

func (f *FileFetcher) parsePrizes(content string) []Prize {
	section := rePrizesSection.FindStringSubmatch(content)
	if section == nil {
		return nil
	}

	// Drop commented-out prize lines before matching objects.
	var kept []string
	for _, line := range strings.Split(section[1], "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		kept = append(kept, line)
	}
	clean := strings.Join(kept, "\n")

	var prizes []Prize
	for _, obj := range rePrizeObject.FindAllString(clean, -1) {
		name := firstMatch(rePrizeName, obj)
		image := firstMatch(rePrizeImage, obj)
		if name == "" || image == "" {
			continue
		}
		alt := firstMatch(rePrizeAlt, obj)
		if alt == "" {
			alt = name
		}
		prizes = append(prizes, Prize{
			Name:  name,
			Image: f.absoluteURL(image),
			Alt:   alt,
		})
	}
	return prizes
}

// absoluteURL prefixes a relative asset path with the configured base URL.
func (f *FileFetcher) absoluteURL(p string) string {
	if p == "" || f.baseURL == "" {
		return p
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return f.baseURL + "/" + strings.TrimPrefix(p, "/")
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}
