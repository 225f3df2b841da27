package dispatch

// FieldKey identifies one slot of the task intake form.
type FieldKey string

const (
	FieldClientName    FieldKey = "client_name"
	FieldUrgency       FieldKey = "urgency"
	FieldWhatToDo      FieldKey = "what_to_do"
	FieldGoal          FieldKey = "goal"
	FieldClientPP      FieldKey = "client_pp"
	FieldEquipment     FieldKey = "equipment"
	FieldCostAndHours  FieldKey = "cost_and_hours"
	FieldContactPerson FieldKey = "contact_person"
	FieldPhoto         FieldKey = "photo"
)

type FieldSpec struct {
	Key       FieldKey
	Prompt    string
	AllowSkip bool
}

// TaskFields is the intake order. Senders are prompted for exactly one field at
// a time; only the trailing photo field may be skipped.
var TaskFields = []FieldSpec{
	{Key: FieldClientName, Prompt: "Название клиента"},
	{Key: FieldUrgency, Prompt: "Срочность задачи"},
	{Key: FieldWhatToDo, Prompt: "Что нужно сделать"},
	{Key: FieldGoal, Prompt: "Цель работы"},
	{Key: FieldClientPP, Prompt: "ПП клиента"},
	{Key: FieldEquipment, Prompt: "Оборудование (марка, модель)"},
	{Key: FieldCostAndHours, Prompt: "Сумма и количество часов"},
	{Key: FieldContactPerson, Prompt: "Контактное лицо (ФИО и номера)"},
	{Key: FieldPhoto, Prompt: "Фото задачи (или пропустите)", AllowSkip: true},
}
