package policy

import (
	"context"
	"strings"
)

// StaticOperationCodes validates operation codes against a fixed catalog
// loaded from configuration, keyed by device type. Deployments with a device
// management plane would substitute their own validator.
type StaticOperationCodes struct {
	catalog map[string]map[string]bool
}

func NewStaticOperationCodes(codesByDeviceType map[string][]string) *StaticOperationCodes {
	catalog := make(map[string]map[string]bool, len(codesByDeviceType))
	for deviceType, codes := range codesByDeviceType {
		set := make(map[string]bool, len(codes))
		for _, code := range codes {
			set[strings.ToUpper(strings.TrimSpace(code))] = true
		}
		catalog[strings.ToLower(strings.TrimSpace(deviceType))] = set
	}
	return &StaticOperationCodes{catalog: catalog}
}

func (v *StaticOperationCodes) ValidOperationCodes(ctx context.Context, deviceType string, codes []string) (map[string]bool, error) {
	known := v.catalog[strings.ToLower(strings.TrimSpace(deviceType))]
	result := make(map[string]bool, len(codes))
	for _, code := range codes {
		result[code] = known[strings.ToUpper(strings.TrimSpace(code))]
	}
	return result, nil
}
