package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemotePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.txt", "/home/user/a.txt"},
		{"/src/a.ts", "/home/user/src/a.ts"},
		{"/home/user/src/a.ts", "/home/user/src/a.ts"},
		{"/home/username/a.ts", "/home/user/home/username/a.ts"},
		{"", "/home/user"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RemotePath(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, RemotePath(got))
		})
	}
}

func TestParentDirs(t *testing.T) {
	assert.Nil(t, ParentDirs("/home/user/a.txt"))
	assert.Equal(t,
		[]string{"/home/user/src", "/home/user/src/lib"},
		ParentDirs("src/lib/a.ts"))
}

func TestMirrorFile(t *testing.T) {
	l := NewLink(0, nil)
	d := &mockDriver{}
	l.SetConnected(true, "sbx")
	l.RegisterDriver(context.Background(), d)

	require.NoError(t, MirrorFile(context.Background(), l, "src/lib/a.ts", "x"))

	assert.Equal(t, []string{
		"mkdir /home/user/src",
		"mkdir /home/user/src/lib",
		"write /home/user/src/lib/a.ts",
	}, d.Calls())
}

func TestMirrorFile_Rejected(t *testing.T) {
	l := NewLink(0, nil) // disconnected: operations return false

	err := MirrorFile(context.Background(), l, "a.ts", "x")

	var mirrorErr *MirrorError
	require.ErrorAs(t, err, &mirrorErr)
	assert.Equal(t, "write", mirrorErr.Stage)
	assert.ErrorIs(t, err, ErrWriteRejected)
}
