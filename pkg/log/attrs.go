package log

import "log/slog"

func FrameID[T ~string](id T) slog.Attr {
	return slog.String("frame_id", string(id))
}

func NodeID[T ~string](id T) slog.Attr {
	return slog.String("node_id", string(id))
}

func NodeType[T ~string](t T) slog.Attr {
	return slog.String("node_type", string(t))
}

func Path(path string) slog.Attr {
	return slog.String("path", path)
}

func State[T ~string](state T) slog.Attr {
	return slog.String("state", string(state))
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}
