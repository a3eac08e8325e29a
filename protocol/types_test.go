package protocol

import "testing"

func TestCmdSplit(t *testing.T) {
	cases := []struct {
		cmd  Cmd
		prog string
		args []string
	}{
		{"", "", nil},
		{"/bin/ls", "/bin/ls", nil},
		{"/bin/ls -la /tmp", "/bin/ls", []string{"-la", "/tmp"}},
		{"  /bin/echo   hi  ", "/bin/echo", []string{"hi"}},
	}

	for _, c := range cases {
		if got := c.cmd.Program(); got != c.prog {
			t.Errorf("Cmd(%q).Program() = %q, want %q", c.cmd, got, c.prog)
		}
		args := c.cmd.Args()
		if len(args) != len(c.args) {
			t.Fatalf("Cmd(%q).Args() = %v, want %v", c.cmd, args, c.args)
		}
		for i := range args {
			if args[i] != c.args[i] {
				t.Errorf("Cmd(%q).Args()[%d] = %q, want %q", c.cmd, i, args[i], c.args[i])
			}
		}
	}
}

func TestPermissionsMode(t *testing.T) {
	p := Permissions{OwnerRead: true, OwnerWrite: true, GroupRead: true, OtherRead: true}
	if got, want := p.Mode(), uint32(0o644); got != want {
		t.Errorf("Mode() = %o, want %o", got, want)
	}

	back := PermissionsFromMode(0o644)
	if back != p {
		t.Errorf("PermissionsFromMode(0o644) = %+v, want %+v", back, p)
	}
}

func TestPermissionsModeFull(t *testing.T) {
	p := PermissionsFromMode(0o777)
	if got, want := p.Mode(), uint32(0o777); got != want {
		t.Errorf("Mode() = %o, want %o", got, want)
	}
}
