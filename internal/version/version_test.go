package version

import "testing"

func TestGetInfo(t *testing.T) {
	Get()
	oldVersion, oldCommit := Version, CommitHash
	t.Cleanup(func() { Version, CommitHash = oldVersion, oldCommit })

	Version, CommitHash = "1.2.0", "0123456789abcdef"
	if got := GetInfo(); got != "1.2.0 (0123456)" {
		t.Fatalf("GetInfo() = %q", got)
	}
	CommitHash = ""
	if got := GetInfo(); got != "1.2.0" {
		t.Fatalf("GetInfo() = %q", got)
	}
}
