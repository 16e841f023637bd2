package txstatus

// TXStatus is the transaction indicator byte carried by ReadyForQuery.
type TXStatus byte

const (
	TXIDLE = TXStatus('I')
	TXACT  = TXStatus('T')
	TXERR  = TXStatus('E')
)

func (s TXStatus) String() string {
	switch s {
	case TXIDLE:
		return "IDLE"
	case TXACT:
		return "ACTIVE"
	case TXERR:
		return "ERROR"
	}
	return "invalid"
}
