package mongo

type Entry struct {
	Key   string `json:"key" bson:"_id"`
	Value string `json:"value" bson:"value"`
}
