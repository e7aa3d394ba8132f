package config

type WorkerKeyStruct struct {
	PersistSubmissionsQueue string
	DeadSubmissionsQueue    string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSubmissionsQueue: "persist_submissions_queue",
	DeadSubmissionsQueue:    "dead_submissions_queue",
}
