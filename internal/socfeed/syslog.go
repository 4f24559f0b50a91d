package socfeed

import (
	"context"
	"errors"
	"net"

	"github.com/invisible-tech/mazerunner-sdk/internal/types"
)

const maxDatagram = 64 * 1024

func (f *Feeder) serveSyslog(ctx context.Context) {
	go func() {
		<-ctx.Done()
		f.conn.Close()
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := f.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			f.log.WithError(err).Warn("Syslog read failed")
			continue
		}
		source := "syslog"
		if addr != nil {
			source = addr.String()
		}
		if err := f.HandleDatagram(ctx, source, buf[:n]); err != nil {
			f.log.WithError(err).WithField("source", source).Debug("Datagram not forwarded")
		}
	}
}

// HandleDatagram forwards one CEF record received from source.
func (f *Feeder) HandleDatagram(ctx context.Context, source string, data []byte) error {
	event, err := ParseCEF(string(data))
	if err != nil {
		f.record(inputSyslog, source, 0, err)
		return err
	}
	return f.submit(ctx, inputSyslog, source, []types.SOCEvent{event})
}
