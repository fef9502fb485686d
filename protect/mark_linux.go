package protect

import (
	"golang.org/x/sys/unix"

	"github.com/treemana/dohtun/log"
)

// Mark returns a Protector that sets SO_MARK on the socket. Routing rules
// installed for the tunnel skip packets carrying the mark.
func Mark(mark int) Protector {
	if mark == 0 {
		return nil
	}
	return func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_MARK, mark); err != nil {
			log.Sugar.Errorf("protect fd=%d, set mark %d error=[%+v]", fd, mark, err)
		}
	}
}
