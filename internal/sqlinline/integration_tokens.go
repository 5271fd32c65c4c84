package sqlinline

const QSelectIntegrationToken = `--sql b849db48-b0db-4544-bbcd-b3917047dc9f
select token
from integration_tokens
where provider = $1::text
limit 1;
`

// QUpsertIntegrationToken replaces the token and merges properties.
const QUpsertIntegrationToken = `--sql 6f8583d0-c616-4f38-813b-b2035567bbce
insert into integration_tokens (provider, token, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`
