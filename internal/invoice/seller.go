package invoice

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SellerProfile is the shop identity printed in the invoice header and
// footer. It is loaded once at startup from a YAML file.
type SellerProfile struct {
	Name       string `yaml:"name"`
	Address    string `yaml:"address"`
	City       string `yaml:"city"`
	State      string `yaml:"state"`
	PostalCode string `yaml:"postal_code"`
	Country    string `yaml:"country"`
	Email      string `yaml:"email"`
	Phone      string `yaml:"phone"`
	GSTIN      string `yaml:"gstin"`
	Terms      string `yaml:"terms"`
}

// DefaultSellerProfile is used when no profile file is configured.
func DefaultSellerProfile() SellerProfile {
	return SellerProfile{
		Name:    "ShopKart",
		Country: "India",
		Terms:   "Thank you for shopping with us. Goods once sold are subject to our return policy.",
	}
}

func LoadSellerProfile(path string) (SellerProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SellerProfile{}, fmt.Errorf("failed to read seller profile: %w", err)
	}

	var profile SellerProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return SellerProfile{}, fmt.Errorf("failed to parse seller profile: %w", err)
	}
	if strings.TrimSpace(profile.Name) == "" {
		return SellerProfile{}, fmt.Errorf("seller profile is missing a name")
	}
	if strings.TrimSpace(profile.Terms) == "" {
		profile.Terms = DefaultSellerProfile().Terms
	}
	return profile, nil
}
