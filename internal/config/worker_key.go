package config

type WorkerKeyStruct struct {
	EscalationQueue string
}

var WorkerKey = &WorkerKeyStruct{
	EscalationQueue: "proctor_escalations_queue",
}
