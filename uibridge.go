package uibridge

// Version is the bridge release.
const Version = "0.3.0"

// ABIVersion is the guest ABI revision sent to guest modules on init.
// Guests built for another revision should reject the request with a
// version_mismatch error.
const ABIVersion = 1
