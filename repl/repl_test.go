package repl_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andreyvit/diff"

	"github.com/leftmike/anchor/anchor"
	"github.com/leftmike/anchor/repl"
	"github.com/leftmike/anchor/testutil"
)

func openEnv(t *testing.T) *anchor.Env {
	t.Helper()

	env, err := anchor.Open(anchor.Options{
		Engine: "memory",
		Logger: testutil.SetupLogger(filepath.Join("testdata", "repl.log")),
	})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func runSession(t *testing.T, env *anchor.Env, script string) string {
	t.Helper()

	var buf bytes.Buffer
	ses := &repl.Session{
		Env:    env,
		Writer: &buf,
		Source: t.Name(),
	}
	ses.Run(context.Background(), repl.NewLineReader(strings.NewReader(script)))
	return buf.String()
}

func TestSession(t *testing.T) {
	cases := []struct {
		script string
		want   string
	}{
		{
			script: `
begin write
put a 1
put b 2
put c 3
get b
get z
# comment
range a c
get a
next
take 5
next
commit
`,
			want: `write transaction begun
ok
ok
ok
2
not found
ok
error: anchor: a range is open: get "a"
a = 1
b = 2
done
committed
`,
		},
		{
			script: `
begin read
range a z
take 0
done
put d 4
get c
"done"
get c
`,
			want: `read transaction begun
ok
error: anchor: take count must be positive: take 0
ok
error: anchor: transaction is read only: put "d"
3
aborted
error: no transaction; use begin write or begin read
`,
		},
		{
			script: `
begin write
put "key with space" 'a value'
abort
begin read
get "key with space"
range a z
take 2
take 2
take 2
commit
`,
			want: `write transaction begun
ok
aborted
read transaction begun
not found
ok
a = 1
b = 2
c = 3
done
aborted
`,
		},
		{
			script: `
begin
begin sideways
frob
put a
`,
			want: `error: usage: begin write|read
error: begin: got sideways; want write or read
error: unknown command: frob; try help
error: usage: put key value
`,
		},
		{
			script: `
begin write
put x 9
`,
			want: `write transaction begun
ok
`,
		},
		{
			script: `
begin read
get x
done
`,
			want: `read transaction begun
not found
aborted
`,
		},
	}

	env := openEnv(t)
	defer env.Close()

	for _, c := range cases {
		got := runSession(t, env, c.script)
		if got != c.want {
			t.Errorf("Session(%q) output differs:\n%s", c.script, diff.LineDiff(c.want, got))
		}
	}
}

func TestScan(t *testing.T) {
	env := openEnv(t)
	defer env.Close()

	out := runSession(t, env, `
begin write
put apple red
put banana yellow
put cherry red
put date brown
commit
`)
	if !strings.HasSuffix(out, "committed\n") {
		t.Fatalf("setup failed: %s", out)
	}

	cases := []struct {
		start, end string
		limit      int
		rows       []string
		count      string
	}{
		{"", "z", -1, []string{"apple", "banana", "cherry", "date"}, "(4 rows)"},
		{"b", "d", -1, []string{"banana", "cherry"}, "(2 rows)"},
		{"", "z", 3, []string{"apple", "banana", "cherry"}, "(3 rows)"},
		{"e", "z", -1, nil, "(0 rows)"},
		{"z", "a", -1, nil, "(0 rows)"},
	}

	for _, c := range cases {
		var buf bytes.Buffer
		err := repl.Scan(context.Background(), env, c.start, c.end, c.limit, &buf)
		if err != nil {
			t.Errorf("Scan(%q, %q, %d) failed with %s", c.start, c.end, c.limit, err)
			continue
		}

		out := buf.String()
		if !strings.HasSuffix(out, c.count+"\n") {
			t.Errorf("Scan(%q, %q, %d) got %s want %s", c.start, c.end, c.limit, out, c.count)
		}
		prev := -1
		for _, row := range c.rows {
			idx := strings.Index(out, "| "+row+" ")
			if idx < 0 {
				t.Errorf("Scan(%q, %q, %d) missing %s: %s", c.start, c.end, c.limit, row, out)
			} else if idx < prev {
				t.Errorf("Scan(%q, %q, %d) %s out of order: %s", c.start, c.end, c.limit, row,
					out)
			}
			prev = idx
		}
	}
}

func TestSessionEndsWithRangeOpen(t *testing.T) {
	env := openEnv(t)
	defer env.Close()

	out := runSession(t, env, "begin write\nput a 1\nrange a z\nnext\n")
	want := "write transaction begun\nok\nok\na = 1\n"
	if out != want {
		t.Errorf("Session() output differs:\n%s", diff.LineDiff(want, out))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	txn, err := anchor.BeginWrite(ctx, env)
	if err != nil {
		t.Fatalf("BeginWrite() after session end failed with %s", err)
	}
	_, err = txn.Get(ctx, "a")
	if err != anchor.ErrNotFound {
		t.Errorf("Get(a) got %v want %s", err, anchor.ErrNotFound)
	}
	txn.Abort(ctx)
}
