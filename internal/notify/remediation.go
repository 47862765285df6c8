package notify

// remediation maps classifier category names to operator-facing text.
var remediation = map[string]struct {
	diagnosis string
	fix       string
	critical  bool
}{
	"no_creds_terminate": {
		diagnosis: "connection terminated before pairing completed; no valid credentials",
		fix:       "open the session screen and pair the number again by scanning a new QR code",
		critical:  true,
	},
	"device_removed": {
		diagnosis: "the account owner removed this device from their linked devices",
		fix:       "re-link the number: start the session and scan the QR code from the phone",
		critical:  true,
	},
	"logged_out": {
		diagnosis: "session was logged out",
		fix:       "start the session again when you want to reconnect this number",
	},
	"restart_required": {
		diagnosis: "the network asked for a reconnect after pairing",
		fix:       "no action needed, reconnecting automatically",
	},
	"connection_lost": {
		diagnosis: "connection to the network was lost",
		fix:       "no action needed, reconnecting automatically",
	},
	"generic_transient": {
		diagnosis: "connection dropped unexpectedly",
		fix:       "no action needed unless reconnection keeps failing",
	},
	"max_retries": {
		diagnosis: "maximum reconnection attempts reached",
		fix:       "check the phone's internet connection, then reconnect manually",
	},
	"qr_expired": {
		diagnosis: "the QR code expired before it was scanned",
		fix:       "start the session again to generate a fresh QR code",
	},
	"qr_budget": {
		diagnosis: "too many QR codes were generated without a scan",
		fix:       "start the session again when you are ready to scan",
	},
}

// AlertFor builds the operator-facing alert for a category name.
func AlertFor(sessionID int64, category string) Alert {
	r, ok := remediation[category]
	if !ok {
		r = remediation["generic_transient"]
	}
	return Alert{
		SessionID:   sessionID,
		Category:    category,
		Diagnosis:   r.diagnosis,
		Remediation: r.fix,
		Critical:    r.critical,
	}
}
