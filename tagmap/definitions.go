package tagmap

// Logical names of the vision -> PLC handshake tags. Exported so callers
// never spell tag names inline.
const (
	TagVisionReady        = "VisionReady"
	TagVisionBusy         = "VisionBusy"
	TagVisionError        = "VisionError"
	TagVisionHeartbeat    = "VisionHeartbeat"
	TagProductDetected    = "ProductDetected"
	TagCentroidX          = "CentroidX"
	TagCentroidY          = "CentroidY"
	TagConfidence         = "Confidence"
	TagDetectionCount     = "DetectionCount"
	TagProcessingTime     = "ProcessingTime"
	TagVisionEchoAck      = "VisionEchoAck"
	TagVisionDataSent     = "VisionDataSent"
	TagVisionReadyForNext = "VisionReadyForNext"
	TagSystemFault        = "SystemFault"

	TagRobotAck              = "RobotAck"
	TagRobotReady            = "RobotReady"
	TagRobotError            = "RobotError"
	TagRobotBusy             = "RobotBusy"
	TagRobotPickComplete     = "RobotPickComplete"
	TagRobotPlaceComplete    = "RobotPlaceComplete"
	TagPlcAuthorizeDetection = "PlcAuthorizeDetection"
	TagPlcCycleStart         = "PlcCycleStart"
	TagPlcCycleComplete      = "PlcCycleComplete"
	TagPlcEmergencyStop      = "PlcEmergencyStop"
	TagPlcSystemMode         = "PlcSystemMode"
	TagHeartbeat             = "Heartbeat"
	TagSystemMode            = "SystemMode"

	TagSafetyGateClosed     = "Safety_GateClosed"
	TagSafetyAreaClear      = "Safety_AreaClear"
	TagSafetyLightCurtainOK = "Safety_LightCurtainOK"
	TagSafetyEmergencyStop  = "Safety_EmergencyStop"
)

// builtinDefinitions returns the full whitelist keyed by logical name.
// Device names match the PLC program of the cell.
func builtinDefinitions() map[string]Definition {
	defs := []Definition{
		// Write tags (vision -> PLC)
		{TagVisionReady, "VisionCtrl_VisionReady", Bool, Write, "vision system ready", false},
		{TagVisionBusy, "VisionCtrl_VisionBusy", Bool, Write, "vision system processing", nil},
		{TagVisionError, "VisionCtrl_VisionError", Bool, Write, "vision system error", nil},
		{TagVisionHeartbeat, "VisionCtrl_Heartbeat", Bool, Write, "liveness heartbeat (toggled)", nil},
		{TagProductDetected, "PRODUCT_DETECTED", Bool, Write, "product detected", nil},
		{TagCentroidX, "CENTROID_X", Real, Write, "centroid X coordinate", nil},
		{TagCentroidY, "CENTROID_Y", Real, Write, "centroid Y coordinate", nil},
		{TagConfidence, "CONFIDENCE", Real, Write, "detection confidence (0-1)", nil},
		{TagDetectionCount, "DETECTION_COUNT", Int, Write, "detection count", nil},
		{TagProcessingTime, "PROCESSING_TIME", Real, Write, "inference time (ms)", nil},
		{TagVisionEchoAck, "VisionCtrl_EchoAck", Bool, Write, "acknowledge echo", nil},
		{TagVisionDataSent, "VisionCtrl_DataSent", Bool, Write, "detection payload written", nil},
		{TagVisionReadyForNext, "VisionCtrl_ReadyForNext", Bool, Write, "ready for next cycle", nil},
		{TagSystemFault, "SYSTEM_FAULT", Bool, Write, "system fault", nil},

		// Read tags (PLC/robot -> vision)
		{TagRobotAck, "ROBOT_ACK", Bool, Read, "robot acknowledge", nil},
		{TagRobotReady, "ROBOT_READY", Bool, Read, "robot ready", nil},
		{TagRobotError, "ROBOT_ERROR", Bool, Read, "robot error", nil},
		{TagRobotBusy, "RobotStatus_Busy", Bool, Read, "robot in motion", nil},
		{TagRobotPickComplete, "RobotStatus_PickComplete", Bool, Read, "pick completed", nil},
		{TagRobotPlaceComplete, "RobotStatus_PlaceComplete", Bool, Read, "place completed", nil},
		{TagPlcAuthorizeDetection, "RobotCtrl_AuthorizeDetection", Bool, Read, "PLC authorizes detection", nil},
		{TagPlcCycleStart, "RobotCtrl_CycleStart", Bool, Read, "PLC requests new cycle", nil},
		{TagPlcCycleComplete, "RobotCtrl_CycleComplete", Bool, Read, "cycle complete", nil},
		{TagPlcEmergencyStop, "RobotCtrl_EmergencyStop", Bool, Read, "emergency stop active", nil},
		{TagPlcSystemMode, "RobotCtrl_SystemMode", Int, Read, "mode (0=manual 1=auto 2=maintenance)", nil},
		{TagHeartbeat, "SystemStatus_Heartbeat", Bool, Read, "PLC heartbeat", nil},
		{TagSystemMode, "SystemStatus_Mode", Int, Read, "PLC system mode", nil},

		// Safety circuit tags
		{TagSafetyGateClosed, "Safety_GateClosed", Bool, Read, "gate closed", nil},
		{TagSafetyAreaClear, "Safety_AreaClear", Bool, Read, "work area clear", nil},
		{TagSafetyLightCurtainOK, "Safety_LightCurtainOK", Bool, Read, "light curtain OK", nil},
		{TagSafetyEmergencyStop, "Safety_EmergencyStop", Bool, Read, "emergency circuit OK", nil},
	}

	out := make(map[string]Definition, len(defs))
	for _, d := range defs {
		out[d.LogicalName] = d
	}
	return out
}
