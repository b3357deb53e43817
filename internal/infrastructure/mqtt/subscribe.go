package mqtt

import "fmt"

// Subscribe routes messages on topic (wildcards allowed) to handler and
// remembers the subscription so it is replayed after a reconnect.
//
// Subscribing again to the same topic replaces the handler.
//
// Example:
//
//	err := client.Subscribe(cfg.Player.Topics.TransportState, 1,
//	    func(topic string, payload []byte) error {
//	        return listener.enqueue(topic, payload)
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := waitToken(c.paho.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		return err
	}

	c.subMu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()
	return nil
}

// Unsubscribe stops delivery for topic and forgets it for reconnects.
// Messages already queued in paho may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	// Forget first: if the broker round trip fails the subscription should
	// still not come back on the next reconnect.
	c.subMu.Lock()
	delete(c.subs, topic)
	c.subMu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return waitToken(c.paho.Unsubscribe(topic), ErrSubscribeFailed)
}

func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	return nil
}
