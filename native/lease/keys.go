package lease

import "strings"

var (
	leaseStatePrefix    = []byte("lease/state/")
	leaseCustomerPrefix = []byte("lease/customer/")
)

func leaseStateKey(leaseID string) []byte {
	trimmed := strings.TrimSpace(leaseID)
	buf := make([]byte, len(leaseStatePrefix)+len(trimmed))
	copy(buf, leaseStatePrefix)
	copy(buf[len(leaseStatePrefix):], trimmed)
	return buf
}

func customerLeasesKey(customer string) []byte {
	trimmed := strings.TrimSpace(customer)
	buf := make([]byte, len(leaseCustomerPrefix)+len(trimmed))
	copy(buf, leaseCustomerPrefix)
	copy(buf[len(leaseCustomerPrefix):], trimmed)
	return buf
}
