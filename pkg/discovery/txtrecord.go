package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fieldbus/fieldbus-go/pkg/wire"
)

// TXTRecordMap represents TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeEndpointTXT builds the TXT record for an endpoint.
func EncodeEndpointTXT(info *EndpointInfo) (TXTRecordMap, error) {
	txt := TXTRecordMap{
		TXTKeyVersion:  strconv.Itoa(ProtocolVersion),
		TXTKeyServices: EncodeServiceEntries(info.Services),
	}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	for k, v := range txt {
		if len(k)+1+len(v) > MaxTXTValueLen {
			return nil, fmt.Errorf("%w: %s", ErrTXTTooLong, k)
		}
	}
	return txt, nil
}

// DecodeEndpointTXT parses a TXT record into endpoint info. Port and
// InstanceName are not part of the TXT record and stay zero.
func DecodeEndpointTXT(txt TXTRecordMap) (*EndpointInfo, error) {
	raw, ok := txt[TXTKeyServices]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyServices)
	}
	services, err := ParseServiceEntries(raw)
	if err != nil {
		return nil, err
	}
	return &EndpointInfo{
		Name:     txt[TXTKeyName],
		Services: services,
	}, nil
}

// EncodeServiceEntries formats entries as "ssss.iiii:major.minor,...".
func EncodeServiceEntries(entries []wire.ServiceEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s:%d.%d", e.Key(), e.Major, e.Minor))
	}
	return strings.Join(parts, ",")
}

// ParseServiceEntries parses the output of EncodeServiceEntries.
func ParseServiceEntries(s string) ([]wire.ServiceEntry, error) {
	if s == "" {
		return nil, nil
	}
	var entries []wire.ServiceEntry
	for _, part := range strings.Split(s, ",") {
		keyStr, verStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTXTRecord, part)
		}
		key, err := wire.ParseServiceKey(keyStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
		}
		majStr, minStr, ok := strings.Cut(verStr, ".")
		if !ok {
			return nil, fmt.Errorf("%w: version %q", ErrInvalidTXTRecord, verStr)
		}
		major, err := strconv.ParseUint(majStr, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: major %q", ErrInvalidTXTRecord, majStr)
		}
		minor, err := strconv.ParseUint(minStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: minor %q", ErrInvalidTXTRecord, minStr)
		}
		entries = append(entries, wire.ServiceEntry{
			Service:  key.Service,
			Instance: key.Instance,
			Major:    wire.MajorVersion(major),
			Minor:    wire.MinorVersion(minor),
		})
	}
	return entries, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		if s == "" {
			continue
		}
		k, v, _ := strings.Cut(s, "=")
		txt[k] = v
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
