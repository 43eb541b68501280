package jobapi

// 以下は results の要素（ジョブ種別ごとの結果形状）です。

// PersonaTransformItem は persona_transform の結果要素です。
type PersonaTransformItem struct {
	SourceID  string `json:"source_id"`
	Persona   string `json:"persona"`
	Namespace string `json:"namespace"`
	Style     string `json:"style,omitempty"`
	Content   string `json:"content"`
}

// Detection は madhyamaka_detect が検出した表現の1件です。
type Detection struct {
	Extreme     string  `json:"extreme"` // eternalism | nihilism
	Phrase      string  `json:"phrase"`
	Explanation string  `json:"explanation,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// MadhyamakaDetectItem は madhyamaka_detect の結果要素です。
type MadhyamakaDetectItem struct {
	SourceID         string      `json:"source_id"`
	EternalismScore  float64     `json:"eternalism_score"`
	NihilismScore    float64     `json:"nihilism_score"`
	MiddlePathScore  float64     `json:"middle_path_score"`
	Detections       []Detection `json:"detections"`
	DominantTendency string      `json:"dominant_tendency,omitempty"`
}

// MadhyamakaTransformItem は madhyamaka_transform の結果要素です。
type MadhyamakaTransformItem struct {
	SourceID     string   `json:"source_id"`
	Content      string   `json:"content"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// Perspective は perspectives の1視点です。
type Perspective struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// PerspectivesItem は perspectives の結果要素です。
type PerspectivesItem struct {
	SourceID     string        `json:"source_id"`
	Perspectives []Perspective `json:"perspectives"`
}
