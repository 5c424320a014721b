package nanto

import "testing"

func TestNeedsProvisionPrivileges(t *testing.T) {
	cases := []struct {
		args []string
		want bool
	}{
		{nil, true}, // bare run may auto-provision
		{[]string{"install"}, true},
		{[]string{"--install"}, true},
		{[]string{"-i"}, true},
		{[]string{"deploy", "-t", "pi@gadget"}, true},
		{[]string{"build"}, false},
		{[]string{"-b"}, false},
		{[]string{"verify"}, false},
		{[]string{"publish"}, false},
		{[]string{"log"}, false},
		{[]string{"clean", "-all"}, false},
		{[]string{"help"}, false},
	}
	for _, tc := range cases {
		if got := needsProvisionPrivileges(tc.args); got != tc.want {
			t.Fatalf("needsProvisionPrivileges(%v) = %v, want %v", tc.args, got, tc.want)
		}
	}
}
