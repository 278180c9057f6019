package testutil

// MaxFuzzBytes caps fuzz inputs so one case stays fast.
const MaxFuzzBytes = 2048

func ClampBytes(data []byte, max int) []byte {
	if len(data) > max {
		return data[:max]
	}
	return data
}

func ClampString(data string, max int) string {
	if len(data) > max {
		return data[:max]
	}
	return data
}
