package association

// The methods below satisfy sendqueue.Notifier, letting Socket itself be
// passed as the queue's owner instead of a separate adapter type.

func (s *Socket) OnBufferedAmountLow(streamID uint16) {
	s.cb.OnBufferedAmountLow(streamID)
}

func (s *Socket) OnTotalBufferedAmountLow() {
	s.cb.OnTotalBufferedAmountLow()
}

func (s *Socket) OnLifecycleMessageExpired(lifecycleID string, maybeDelivered bool) {
	if lifecycleID == "" {
		return
	}
	s.cb.OnLifecycleMessageExpired(lifecycleID, maybeDelivered)
	s.cb.OnLifecycleEnd(lifecycleID)
}

func (s *Socket) OnOutgoingMessageBufferEmpty() {
	s.cb.OnOutgoingMessageBufferEmpty()
}

func (s *Socket) OnSentMessageExpired(streamID uint16, ppid uint32, unsent bool) {
	s.cb.OnSentMessageExpired(streamID, ppid, unsent)
}
