package services

import (
	"bufio"
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed resources/banks.txt
var embeddedBanks string

// DefaultBanks returns the bank list shipped with the binary.
func DefaultBanks() []string {
	return ParseBankList(embeddedBanks)
}

// ParseBankList reads one bank name per line; blank lines are ignored.
func ParseBankList(text string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// LoadBanks reads the bank list from path, falling back to the embedded list
// when path is empty.
func LoadBanks(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultBanks(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bank list: %w", err)
	}
	banks := ParseBankList(string(data))
	if len(banks) == 0 {
		return nil, fmt.Errorf("bank list %s is empty", path)
	}
	return banks, nil
}
