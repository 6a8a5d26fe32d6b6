package transcriber

import (
	"context"
	"encoding/json"

	"nhooyr.io/websocket"
)

type deepgramStreamResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStreamSession struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *deepgramStreamSession) Send(pcm []byte) error {
	return s.conn.Write(s.ctx, websocket.MessageBinary, pcm)
}

func (s *deepgramStreamSession) CloseSend() error {
	return s.conn.Write(s.ctx, websocket.MessageText, []byte(`{"type":"Finalize"}`))
}

func (s *deepgramStreamSession) Recv() (streamUpdate, error) {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return streamUpdate{}, err
		}
		update, ok, err := parseDeepgramMessage(data)
		if err != nil {
			return streamUpdate{}, err
		}
		if ok {
			return update, nil
		}
	}
}

// parseDeepgramMessage skips Metadata and UtteranceEnd frames.
func parseDeepgramMessage(data []byte) (streamUpdate, bool, error) {
	var resp deepgramStreamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return streamUpdate{}, false, err
	}
	if resp.Type != "" && resp.Type != "Results" {
		return streamUpdate{}, false, nil
	}

	transcript := ""
	if len(resp.Channel.Alternatives) > 0 {
		transcript = resp.Channel.Alternatives[0].Transcript
	}
	return streamUpdate{
		Transcript:   transcript,
		IsFinal:      resp.IsFinal,
		SpeechFinal:  resp.SpeechFinal,
		FromFinalize: resp.FromFinalize,
	}, true, nil
}

func (s *deepgramStreamSession) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
