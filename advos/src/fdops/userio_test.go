package fdops

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vm"
)

var _ Userio_i = (*vm.Userbuf_t)(nil)
var _ Userio_i = (*vm.Useriovec_t)(nil)
var _ Userio_i = (*vm.Fakeubuf_t)(nil)

func TestFakeubufSatisfiesUserio(t *testing.T) {
	var fb vm.Fakeubuf_t
	fb.Fake_init(make([]byte, 4))
	var u Userio_i = &fb
	n, err := u.Uiowrite([]byte("abcd"))
	require.Zero(t, err)
	require.Equal(t, 4, n)
}
