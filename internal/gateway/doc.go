// Package gateway はLLMゲートウェイの内部実装を提供する。
//
// ルーティングエンジンの判定結果を受け取り、選択された経路に応じて
// LLMプロバイダを呼び出す。ANTIGRAVITYはプロバイダを呼ばずにローカルで応答し、
// DEEPSEEK_THEN_GPT5はDeepSeekの結果に確信が持てない場合のみGPT-5に昇格する。
//
// プロバイダはAPIのURLとキーが両方設定されていればOpenAI互換APIを呼び出し、
// そうでなければ固定の応答を返すシミュレーションとして動作する。
package gateway
