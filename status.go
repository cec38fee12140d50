package conduit

import "github.com/coder/websocket"

// Status is a WebSocket close status code as defined in RFC 6455. Close hooks
// receive the status the connection was closed with.
type Status = websocket.StatusCode

const (
	StatusNormalClosure           Status = websocket.StatusNormalClosure           // 1000
	StatusGoingAway               Status = websocket.StatusGoingAway               // 1001
	StatusUnsupportedData         Status = websocket.StatusUnsupportedData         // 1003
	StatusNoStatusRcvd            Status = websocket.StatusNoStatusRcvd            // 1005
	StatusAbnormalClosure         Status = websocket.StatusAbnormalClosure         // 1006
	StatusInvalidFramePayloadData Status = websocket.StatusInvalidFramePayloadData // 1007
	StatusPolicyViolation         Status = websocket.StatusPolicyViolation         // 1008
	StatusMessageTooBig           Status = websocket.StatusMessageTooBig           // 1009
	StatusInternalError           Status = websocket.StatusInternalError           // 1011
	StatusServiceRestart          Status = websocket.StatusServiceRestart          // 1012
)

// statusFromError extracts the close status carried by a read error. Errors
// that carry no close frame map to StatusAbnormalClosure.
func statusFromError(err error) Status {
	if status := websocket.CloseStatus(err); status != -1 {
		return status
	}
	return StatusAbnormalClosure
}
