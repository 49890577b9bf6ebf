package plcclient

import (
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/errors"
	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/tagmap"
)

// WriteDetectionResult writes a complete detection payload to the PLC as a
// sequence of individual tag writes, finishing with the data-sent flag the
// robot watches for. The sequence is not transactional: a failure partway
// leaves earlier writes applied, and the caller is expected to retry the
// whole payload on the next cycle.
func (c *Client) WriteDetectionResult(detected bool, x, y, confidence float64, count int, processingTimeMS float64) error {
	writes := []struct {
		tag   string
		value any
	}{
		{tagmap.TagProductDetected, detected},
		{tagmap.TagCentroidX, x},
		{tagmap.TagCentroidY, y},
		{tagmap.TagConfidence, confidence},
		{tagmap.TagDetectionCount, count},
		{tagmap.TagProcessingTime, processingTimeMS},
		{tagmap.TagVisionDataSent, true},
	}

	for _, w := range writes {
		if err := c.WriteTag(w.tag, w.value); err != nil {
			return errors.Wrap(err, "Client", "WriteDetectionResult",
				"write "+w.tag)
		}
	}

	c.logger.Info("detection result written",
		"detected", detected, "x", x, "y", y,
		"confidence", confidence, "count", count)
	return nil
}

// ReadRobotAck reads the robot acknowledge flag.
func (c *Client) ReadRobotAck() (bool, error) {
	value, err := c.ReadTag(tagmap.TagRobotAck)
	if err != nil {
		return false, err
	}
	b, _ := value.(bool)
	return b, nil
}

// SetVisionReady signals whether the vision system is operational.
func (c *Client) SetVisionReady(ready bool) error {
	return c.WriteTag(tagmap.TagVisionReady, ready)
}

// SetVisionEchoAck confirms receipt of the robot acknowledge.
func (c *Client) SetVisionEchoAck(ack bool) error {
	return c.WriteTag(tagmap.TagVisionEchoAck, ack)
}

// SetReadyForNext signals the PLC that the vision side is ready for a new
// cycle. On the real cell this makes the PLC reset the handshake flags.
func (c *Client) SetReadyForNext(ready bool) error {
	return c.WriteTag(tagmap.TagVisionReadyForNext, ready)
}

// ReadBool reads a logical tag and coerces it to bool. Non-bool values read
// as false.
func (c *Client) ReadBool(logical string) (bool, error) {
	value, err := c.ReadTag(logical)
	if err != nil {
		return false, err
	}
	b, _ := value.(bool)
	return b, nil
}
