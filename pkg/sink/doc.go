// Package sink writes generated files to their destination.
//
// A destination is either a local directory or an SFTP location written as
// sftp://user@host[:port]/path. Both sinks replace files atomically: data is
// written to a temporary file next to the target and renamed over it, so a
// running HAProxy never reads a half-written configuration.
//
//	s, name, err := sink.OpenFile(ctx, "sftp://deploy@lb1/etc/haproxy/haproxy.cfg", sink.Options{})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	err = s.Write(ctx, name, []byte(output))
package sink
